// Package redact scrubs sensitive values from event payloads before
// they are hashed or persisted. Redaction participates in the canonical
// hash input, so it is security-critical: an entry is hashed over its
// redacted details and can only ever be re-verified against them.
package redact

import (
	"fmt"
	"regexp"
	"strings"

	pkgerrors "github.com/veritrail/veritrail/pkg/errors"
)

const (
	// Marker replaces any value caught by key or pattern matching.
	Marker = "[REDACTED]"
	// DepthMarker replaces a subtree that exceeds the depth bound.
	DepthMarker = "[REDACTED:MAX_DEPTH]"
	// emailMask preserves no content from the original address.
	emailMask = "***@***.***"

	defaultMaxDepth = 10
)

var defaultSensitiveKeys = []string{
	"password", "passwd", "secret", "token", "access_token",
	"refresh_token", "api_key", "apikey", "private_key",
	"authorization", "credential", "credentials", "session_key",
	"ssn", "credit_card", "card_number", "cvv", "pin", "otp",
	"mfa_code", "security_answer",
}

var (
	// Three base64url segments joined by dots: a bearer-token shape.
	// The length floors keep short dot-namespaced identifiers like
	// "field.create.ok" from matching.
	jwtPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}$`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Redactor applies key-based and pattern-based scrubbing to arbitrary
// nested structures. It is deterministic and side-effect-free: the
// input is never mutated, and equal inputs produce equal outputs.
type Redactor struct {
	sensitiveKeys map[string]bool
	maxDepth      int
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithMaxDepth overrides the recursion bound (default 10).
func WithMaxDepth(depth int) Option {
	return func(r *Redactor) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithExtraKeys adds tenant-specific sensitive keys to the fixed set.
func WithExtraKeys(keys ...string) Option {
	return func(r *Redactor) {
		for _, k := range keys {
			r.sensitiveKeys[strings.ToLower(k)] = true
		}
	}
}

// New creates a Redactor with the default sensitive-key set.
func New(opts ...Option) *Redactor {
	r := &Redactor{
		sensitiveKeys: make(map[string]bool, len(defaultSensitiveKeys)),
		maxDepth:      defaultMaxDepth,
	}
	for _, k := range defaultSensitiveKeys {
		r.sensitiveKeys[k] = true
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Redact returns a scrubbed copy of value. Maps and slices are walked
// recursively up to the depth bound; a subtree past the bound is
// replaced with DepthMarker and ErrDepthExceeded is returned alongside
// the partially redacted copy so callers can reject the payload.
func (r *Redactor) Redact(value any) (any, error) {
	out, overflow := r.redactValue(value, 0)
	if overflow {
		return out, fmt.Errorf("%w: structure deeper than %d levels", pkgerrors.ErrDepthExceeded, r.maxDepth)
	}
	return out, nil
}

// RedactMap is the map-shaped convenience used by the chain writer.
func (r *Redactor) RedactMap(details map[string]any) (map[string]any, error) {
	if details == nil {
		return nil, nil
	}
	out, err := r.Redact(details)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func (r *Redactor) redactValue(value any, depth int) (any, bool) {
	if depth > r.maxDepth {
		return DepthMarker, true
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		overflow := false
		for key, inner := range v {
			if r.sensitiveKeys[strings.ToLower(key)] {
				out[key] = Marker
				continue
			}
			redacted, of := r.redactValue(inner, depth+1)
			out[key] = redacted
			overflow = overflow || of
		}
		return out, overflow
	case []any:
		out := make([]any, len(v))
		overflow := false
		for i, inner := range v {
			redacted, of := r.redactValue(inner, depth+1)
			out[i] = redacted
			overflow = overflow || of
		}
		return out, overflow
	case string:
		return redactString(v), false
	default:
		return v, false
	}
}

// redactString catches sensitive values that key matching misses:
// bearer-token-shaped strings are fully redacted, e-mail-shaped
// strings are masked to a fixed form that preserves no content.
func redactString(s string) string {
	if jwtPattern.MatchString(s) {
		return Marker
	}
	if emailPattern.MatchString(s) {
		return emailMask
	}
	return s
}
