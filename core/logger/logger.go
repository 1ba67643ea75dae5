// Package logger writes structured, one-line-per-event logs through slog.
// Call sites name a component and an event; request identifiers travel in
// the context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/flowerbot/core/buildinfo"
	coreconfig "github.com/m3rciful/flowerbot/core/config"
)

var (
	initOnce  sync.Once
	closeOnce sync.Once

	out   *lineWriter
	files []io.Closer

	level slog.LevelVar
	debug = newSampler(1, 50)
	trace bool

	base *slog.Logger
)

// settings is the logging section of the config after defaults.
type settings struct {
	format    logFormat
	level     slog.Level
	order     []string
	sampleNum int
	sampleDen int
	profile   string
	file      string
}

func resolve(cfg *coreconfig.Config) settings {
	s := settings{format: formatJSON, level: slog.LevelInfo, order: defaultKeyOrder, sampleNum: 1, sampleDen: 50, profile: "prod"}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	s.level = parseLevel(lc.Level)
	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}
	if num, den, ok := parseSample(lc.DebugSample); ok {
		s.sampleNum, s.sampleDen = num, den
	}
	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

// InitLogger installs the global logger. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() { err = install(resolve(cfg)) })
	return err
}

func install(s settings) error {
	sinks := []io.Writer{os.Stdout}
	if s.file != "" {
		if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
			return fmt.Errorf("logger: create log dir: %w", err)
		}
		f, err := os.OpenFile(s.file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("logger: open log file: %w", err)
		}
		sinks = append(sinks, f)
		files = append(files, f)
	}

	level.Set(s.level)
	debug.Set(s.sampleNum, s.sampleDen)
	trace = envFlag("TRACE") || envFlag("LOG_TRACE")
	out = newLineWriter(sinks...)
	base = slog.New(newStructuredHandler(handlerConfig{
		level:    &level,
		writer:   out,
		format:   s.format,
		keyOrder: s.order,
	}))
	slog.SetDefault(base)

	Info(context.Background(), "app", "startup",
		slog.String("go_version", runtime.Version()),
		slog.String("version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Revision()),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", s.profile),
	)
	return nil
}

// Shutdown flushes pending lines and closes the log file.
func Shutdown() error {
	var err error
	closeOnce.Do(func() {
		var errs []error
		if out != nil {
			errs = append(errs, out.Close())
		}
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

func emit(ctx context.Context, component string, lvl slog.Level, event string, attrs []slog.Attr) {
	if base == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !base.Enabled(ctx, lvl) {
		return
	}
	head := []slog.Attr{slog.String("component", strings.TrimSpace(component)), slog.String("event", event)}
	base.LogAttrs(ctx, lvl, event, append(head, attrs...)...)
}

// Debug logs event for component at debug level.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelDebug, event, attrs)
}

// Info logs event for component at info level.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelInfo, event, attrs)
}

// Warn logs event for component at warn level.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelWarn, event, attrs)
}

// Error logs event for component at error level.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelError, event, attrs)
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 in the environment lets every line through.
func ShouldSampleDebug() bool {
	return trace || debug.Allow()
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
