// Package logging configures the process-wide slog logger the havenlend
// packages write through.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// LevelEnvVar selects the minimum log level. Accepted values are debug, info,
// warn and error; anything else falls back to info.
const LevelEnvVar = "HAVENLEND_LOG_LEVEL"

// Setup installs a JSON slog handler on stdout as the default logger and
// returns it. Every line carries the service name, and the environment when
// one is given. The level comes from LevelEnvVar.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       levelFromEnv(os.Getenv(LevelEnvVar)),
		ReplaceAttr: renameCoreAttrs,
	})

	args := []any{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		args = append(args, slog.String("env", env))
	}

	logger := slog.New(handler).With(args...)
	slog.SetDefault(logger)
	return logger
}

// renameCoreAttrs maps slog's built-in keys onto the field names the
// havenlend log pipeline indexes on.
func renameCoreAttrs(groups []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

func levelFromEnv(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
