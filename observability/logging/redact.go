package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secret values in log output.
const RedactedValue = "[REDACTED]"

// secretKeys never reach the sink with their value, at any group depth.
var secretKeys = map[string]struct{}{
	"signer_key":            {},
	"rollupmock_signer_key": {},
	"private_key":           {},
	"authorization":         {},
	"telemetry_headers":     {},
}

// IsSecret reports whether values logged under key are masked.
func IsSecret(key string) bool {
	_, ok := secretKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns a string attribute whose value is masked when the key
// names a secret. Empty values pass through so "unset" stays visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSecret(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr is the ReplaceAttr hook installed by Setup.
func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSecret(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
