package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Output field names shared with the redaction allowlist.
const (
	KeyTimestamp = "timestamp"
	KeySeverity  = "severity"
	KeyMessage   = "message"
	KeyService   = "service"
)

// DefaultService labels log lines when no service name is configured.
const DefaultService = "findd"

// Setup installs a JSON slog handler on stdout as the process default and
// returns it. Every line carries the service name and, when set, the
// deployment environment. The standard library logger is bridged onto the
// same handler so third-party log output lands in the structured stream.
func Setup(service, env string) *slog.Logger {
	if service == "" {
		service = DefaultService
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = KeyTimestamp
			case slog.LevelKey:
				return slog.String(KeySeverity, strings.ToUpper(a.Value.String()))
			case slog.MessageKey:
				a.Key = KeyMessage
			}
			return a
		},
	})
	attrs := []slog.Attr{slog.String(KeyService, service)}
	args := []any{slog.String(KeyService, service)}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
		args = append(args, slog.String("env", env))
	}
	base := slog.New(handler).With(args...)
	slog.SetDefault(base)

	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(bridge.Writer())
	return base
}
