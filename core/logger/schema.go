package logger

import (
	"log/slog"
	"strings"
)

// levelName maps slog levels onto the four names the log schema allows.
func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	}
	return "ERROR"
}

// parseLevel accepts the config spellings of a level; unknown ones mean info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// defaultKeyOrder puts identity first and diagnostics last; other keys follow
// alphabetically.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"count",
	"payload",
	"lang",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"state",
	"from_state",
	"to_state",
	"city_id",
	"product_id",
	"order_id",
	"checkout_key",
	"quantity",
	"total",
	"replayed",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempt",
	"delay_ms",
	"rate_limited",
	"collapsed",
	"repeats",
	"pending_count",
	"swept",
}
