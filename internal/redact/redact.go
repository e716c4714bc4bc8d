// Package redact provides recursive redaction of sensitive values,
// canonical digests over redacted structures, and masking of secret
// material in free-form text. Every value that reaches the call ledger
// or a log line passes through here first.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Marker replaces any value whose key looks sensitive.
const Marker = "***REDACTED***"

// sensitiveKeys are matched as case-insensitive substrings of map keys.
var sensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"access_key",
	"private_key",
	"credential",
	"ssn",
	"credit_card",
	"card_number",
	"authorization",
}

// kvPattern matches key=value / key: value credential pairs in free text.
var kvPattern = regexp.MustCompile(
	`(?i)\b(api[_-]?key|password|passwd|secret|token|access[_-]?key|private[_-]?key|authorization|bearer)\b\s*[=:]\s*\S+`)

// IsSensitiveKey reports whether a map key should have its value redacted.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Tree returns a deep copy of v with every sensitive-keyed value replaced
// by Marker. It walks the dynamic value tree (nil/bool/number/string/
// list/map); scalar leaves are returned as-is. The input is never mutated.
func Tree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = Marker
				continue
			}
			out[k] = Tree(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Tree(val)
		}
		return out
	default:
		return v
	}
}

// Canonical serializes v to key-sorted JSON. encoding/json emits object
// keys in sorted order for maps, which is the property the digests rely on.
func Canonical(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing value: %w", err)
	}
	return data, nil
}

// Digest returns the hex SHA-256 of the canonical form of v.
// Callers are expected to pass already-redacted values.
func Digest(v any) string {
	data, err := Canonical(v)
	if err != nil {
		// Unserializable values still need a stable digest.
		data = []byte(fmt.Sprintf("%T", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Summarize reduces a response payload to counts and status so the raw
// payload is never retained. Maps keep their status-ish scalar fields and
// replace everything else with element counts.
func Summarize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			switch inner := val.(type) {
			case []any:
				out[k+"_count"] = len(inner)
			case map[string]any:
				out[k+"_count"] = len(inner)
			case string:
				if k == "status" || k == "state" || k == "result" {
					out[k] = inner
				} else {
					out[k+"_len"] = len(inner)
				}
			default:
				out[k] = val
			}
		}
		return out
	case []any:
		return map[string]any{"count": len(t)}
	default:
		return v
	}
}

// MaskText masks credential-shaped key=value pairs in free-form text,
// typically error messages about to be logged or surfaced.
func MaskText(s string) string {
	return kvPattern.ReplaceAllStringFunc(s, func(m string) string {
		idx := strings.IndexAny(m, "=:")
		if idx < 0 {
			return Marker
		}
		return m[:idx+1] + Marker
	})
}
