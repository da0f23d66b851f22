package logger

import (
	"log/slog"
	"strings"
)

// Sensitive key patterns that should be redacted. StreamMesh carries an
// at-rest encryption key in its configuration; any attribute whose key
// hints at credentials is masked before it reaches a handler.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"credential",
	"encryption_key",
	"cipher_key",
	"auth",
	"bearer",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive checks if an attribute contains sensitive data
// and redacts it if necessary.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		if IsSensitiveKey(a.Key) && a.Value.String() != "" {
			return slog.String(a.Key, redactedValue)
		}
	}

	// Handle nested groups recursively
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// MaskKey partially masks a hex-encoded key, keeping the first and last
// three characters as a hint.
func MaskKey(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:3] + "..." + value[len(value)-3:]
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
