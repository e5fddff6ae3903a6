package auth

import "log/slog"

const secretRedacted = "[REDACTED]"

// Secret holds key material such as the session signing key. It redacts
// itself in every formatting path (fmt verbs, text marshaling, slog) so a
// config struct can be logged whole. Use [Secret.Value] only where the raw
// bytes are needed.
type Secret string

// String returns a redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns a redacted placeholder for %#v.
func (s Secret) GoString() string { return secretRedacted }

// MarshalText returns a redacted placeholder for JSON and YAML encoders.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// LogValue implements [slog.LogValuer].
func (s Secret) LogValue() slog.Value { return slog.StringValue(secretRedacted) }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }
