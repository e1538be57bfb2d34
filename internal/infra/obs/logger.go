package obs

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"passionautos/internal/infra/config"
)

// NewLogger builds the process logger from configuration: colorized tint
// output for local environments, JSON for deployed ones. The minimum level
// comes from LOG_LEVEL.
func NewLogger(cfg config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	writer := os.Stdout
	switch strings.ToLower(strings.TrimSpace(cfg.Env)) {
	case "dev", "local", "test":
		return slog.New(tint.NewHandler(writer, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			AddSource:  true,
		}))
	default:
		return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}))
	}
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
