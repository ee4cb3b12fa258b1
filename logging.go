package flightagent

import (
	"log/slog"
	"os"
	"strings"
)

// LoggingConfig configures logging behavior for the agent.
type LoggingConfig struct {
	// Logger overrides the logger used by the agent if provided.
	Logger *slog.Logger

	// Handler is used to build a logger if Logger is nil.
	Handler slog.Handler

	// Level is used when creating a default handler if Logger and Handler
	// are nil.
	Level slog.Level

	// RedactSensitive enables best-effort redaction of sensitive fields in
	// logged tool arguments.
	RedactSensitive bool
}

// DefaultLoggingConfig returns default logging configuration. Redaction is on
// by default: tool arguments carry card and document numbers.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:           slog.LevelInfo,
		RedactSensitive: true,
	}
}

func resolveLogger(cfg LoggingConfig) *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	if cfg.Handler != nil {
		return slog.New(cfg.Handler)
	}

	level := cfg.Level
	if level == 0 {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// sensitiveKeys covers credentials plus the payment and travel-document
// fields collected by the booking tools.
var sensitiveKeys = map[string]struct{}{
	"api_key":       {},
	"apikey":        {},
	"authorization": {},
	"token":         {},
	"password":      {},
	"secret":        {},
	"access_token":  {},
	"client_secret": {},
	"card_number":   {},
	"cardnumber":    {},
	"cvv":           {},
	"expiry_date":   {},
	"document":      {},
	"passport":      {},
	"date_of_birth": {},
}

// redactArgs returns a copy of tool arguments with sensitive values masked.
func redactArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	redacted := make(map[string]any, len(args))
	for key, val := range args {
		if isSensitiveKey(key) {
			redacted[key] = "[redacted]"
			continue
		}
		if nested, ok := val.(map[string]any); ok {
			redacted[key] = redactArgs(nested)
			continue
		}
		redacted[key] = val
	}
	return redacted
}

func isSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}
