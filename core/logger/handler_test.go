package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/flowerbot/core/config"
)

// capture logs one record through a fresh handler and returns the line.
func capture(t *testing.T, format logFormat, ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	w := newLineWriter(buf)
	log := slog.New(newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		writer: w,
		format: format,
	})).With("component", component)
	log.LogAttrs(ctx, level, event, attrs...)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	line := capture(t, formatKV, ctx, "app", slog.LevelInfo, "test.event",
		slog.String("cause", "unit"),
		slog.String("status", "OK"),
	)
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-json")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	line := capture(t, formatJSON, ctx, "service.test", slog.LevelError, "service.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("err_code", "TEST_FAIL"),
	)
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.test"`, `"event":"service.failed"`, `"status":"fail"`, `"rid":"rid-json"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	ctx := WithRID(context.Background(), BuildRID(123, 456, 789))
	line := capture(t, formatKV, ctx, "app", slog.LevelInfo, "rid.test")
	if !strings.Contains(line, "rid=3f.co.lx") {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if got := CompactRID("not:a:number"); got != "not:a:number" {
		t.Fatalf("CompactRID kept = %q", got)
	}
}

func TestStructuredHandlerFlattensValues(t *testing.T) {
	ctx := WithHandler(context.Background(), "cart")
	line := capture(t, formatKV, ctx, "app", slog.LevelWarn, "send.retry",
		slog.Duration("delay", 1500*time.Millisecond),
		slog.Group("order", slog.Int64("id", 7), slog.String("phone", "+380501234567")),
		slog.Any("err", errors.New("boom now")),
		slog.String("empty", ""),
	)
	for _, want := range []string{"delay_ms=1500", "order.id=7", "order.phone=***********67", `err="boom now"`, "handler=cart"} {
		if !strings.Contains(line, want) {
			t.Fatalf("%q missing in %s", want, line)
		}
	}
	if strings.Contains(line, "empty=") {
		t.Fatalf("empty value kept: %s", line)
	}
}

func TestStructuredHandlerDropsBelowLevel(t *testing.T) {
	line := capture(t, formatKV, context.Background(), "app", slog.LevelDebug, "noise")
	if line != "" {
		t.Fatalf("debug line written at info level: %s", line)
	}
}

func TestStructuredHandlerMasksPhone(t *testing.T) {
	line := capture(t, formatKV, context.Background(), "service.orders", slog.LevelInfo, "order.placed",
		slog.Int64("order_id", 7),
		slog.String("phone", "+380501234567"),
	)
	if strings.Contains(line, "+380501234567") {
		t.Fatalf("phone leaked: %s", line)
	}
	if !strings.Contains(line, "phone=***********67") || !strings.Contains(line, "order_id=7") {
		t.Fatalf("fields missing: %s", line)
	}
}

func TestLineWriterRefusesAfterClose(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newLineWriter(buf)
	if err := w.Write([]byte("a\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Flush(); err != nil || buf.String() != "a\n" {
		t.Fatalf("flush: %q %v", buf.String(), err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Write([]byte("b\n")); !errors.Is(err, errWriterClosed) {
		t.Fatalf("write after close = %v", err)
	}
}

func TestSampler(t *testing.T) {
	s := newSampler(2, 5)
	passed := 0
	for i := 0; i < 20; i++ {
		if s.Allow() {
			passed++
		}
	}
	if passed != 8 {
		t.Fatalf("passed %d of 20, want 8", passed)
	}
	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("a zero ratio must let everything through")
	}

	cases := map[string][2]int{"1/10": {1, 10}, "25": {1, 25}, " 3 / 4 ": {3, 4}}
	for ratio, want := range cases {
		num, den, ok := parseSample(ratio)
		if !ok || num != want[0] || den != want[1] {
			t.Fatalf("parseSample(%q) = %d/%d %v", ratio, num, den, ok)
		}
	}
	if _, _, ok := parseSample("often"); ok {
		t.Fatal("garbage must not parse")
	}
}

func TestResolveSettings(t *testing.T) {
	var cfg coreconfig.Config
	cfg.Logging.Profile = "Dev"
	cfg.Logging.Level = "warning"
	cfg.Logging.KeysOrder = "event, ts"
	cfg.Logging.DebugSample = "1/3"
	cfg.Logging.Dir = "logs"
	cfg.Logging.BotFile = "bot.log"

	s := resolve(&cfg)
	if s.format != formatKV || s.level != slog.LevelWarn || s.profile != "dev" {
		t.Fatalf("settings = %+v", s)
	}
	if len(s.order) != 2 || s.order[0] != "event" || s.sampleDen != 3 {
		t.Fatalf("settings = %+v", s)
	}
	if s.file != "logs/bot.log" {
		t.Fatalf("file = %q", s.file)
	}
	if d := resolve(nil); d.format != formatJSON || d.sampleDen != 50 {
		t.Fatalf("defaults = %+v", d)
	}
}

func TestMaskTail(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"ab":    "**",
		"abcde": "***de",
	}
	for in, want := range cases {
		if got := MaskTail(in, 2); got != want {
			t.Fatalf("MaskTail(%q) = %q, want %q", in, got, want)
		}
	}
}
