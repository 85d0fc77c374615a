// Package redact strips credentials from strings before they reach a log line
// or an HTTP error body.
//
// The relay talks to APIs that carry secrets in places that routinely end up
// in error text: the Telegram bot token is part of the request URL, Twitter
// session cookies travel in headers, and Neynar and OpenRouter keys are set
// per request. Redaction is best-effort and works on string representations;
// callers pass the secrets they know about.
package redact

import (
	"strings"
)

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid mangling
// common substrings.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Error returns an error whose message has the sensitive values stripped.
// The original error stays reachable through errors.Unwrap so kind checks
// keep working. A nil err yields nil.
func Error(err error, sensitiveValues ...string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	clean := String(msg, sensitiveValues...)
	if clean == msg {
		return err
	}
	return &redacted{msg: clean, err: err}
}

type redacted struct {
	msg string
	err error
}

func (r *redacted) Error() string { return r.msg }
func (r *redacted) Unwrap() error { return r.err }

// Map returns a shallow copy of m with string values replaced by [REDACTED]
// for every key whose name suggests a secret.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitiveKey(k) {
			if str, ok := v.(string); ok && str != "" {
				out[k] = placeholder
				continue
			}
		}
		out[k] = v
	}
	return out
}

// IsSensitiveKey reports whether a configuration key or header name suggests
// it holds a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "token", "secret", "key", "cookie", "credential", "auth", "signer"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

