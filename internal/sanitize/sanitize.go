// Package sanitize cleans inbound text and context maps before any other
// component sees them. Credential and PII shapes are redacted in place;
// injection-shaped input is flagged unsafe rather than silently cleaned.
package sanitize

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/garagon/aguara"
	"github.com/trustgate/trustgate/internal/redact"
)

// Kind classifies a sanitizer finding.
type Kind string

const (
	KindCredential      Kind = "credential"
	KindEmail           Kind = "email"
	KindSSN             Kind = "ssn"
	KindCreditCard      Kind = "credit_card"
	KindSQLInjection    Kind = "sql_injection"
	KindPromptInjection Kind = "prompt_injection"
)

// Finding is one detection, with the matched text truncated for logs.
type Finding struct {
	Kind   Kind   `json:"kind"`
	Match  string `json:"match,omitempty"`
	RuleID string `json:"rule_id,omitempty"`
}

// Result holds the cleaned text and whether it is safe to proceed with.
type Result struct {
	Clean    string    `json:"clean"`
	Findings []Finding `json:"findings,omitempty"`
	Safe     bool      `json:"safe"`
}

var (
	credentialPattern = regexp.MustCompile(
		`(?i)\b(api[_-]?key|password|passwd|secret|token|access[_-]?key|private[_-]?key|authorization)\b\s*[=:]\s*\S+`)
	emailPattern = regexp.MustCompile(
		`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	ssnPattern = regexp.MustCompile(
		`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardPattern = regexp.MustCompile(
		`\b(?:\d[ \-]?){13,16}\b`)

	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
		regexp.MustCompile(`(?i)\b(drop|truncate|alter)\s+table\b`),
		regexp.MustCompile(`(?i)\bdelete\s+from\b`),
		regexp.MustCompile(`(?i)\binsert\s+into\b`),
		regexp.MustCompile(`(?i)'\s*(or|and)\s+['\d]`),
		regexp.MustCompile(`(?i);\s*--`),
		regexp.MustCompile(`(?i)\bexec(ute)?\s*\(`),
	}
)

// Sanitizer scans with its own heuristics plus Aguara's built-in
// injection rules.
type Sanitizer struct {
	opts   []aguara.Option
	logger *slog.Logger
}

// New creates a sanitizer using Aguara's built-in rule set.
func New(logger *slog.Logger, extraOpts ...aguara.Option) *Sanitizer {
	return &Sanitizer{opts: extraOpts, logger: logger}
}

// SanitizeMessage redacts secrets and PII from text and reports whether
// the result is safe. Injection-shaped input makes the result unsafe;
// the matched fragment stays in Clean so a reviewer can see what was sent.
func (s *Sanitizer) SanitizeMessage(ctx context.Context, text string) Result {
	res := Result{Clean: text, Safe: true}

	res.Clean = credentialPattern.ReplaceAllStringFunc(res.Clean, func(m string) string {
		res.Findings = append(res.Findings, Finding{Kind: KindCredential, Match: truncate(m, 64)})
		return redact.Marker
	})
	res.Clean = emailPattern.ReplaceAllStringFunc(res.Clean, func(m string) string {
		res.Findings = append(res.Findings, Finding{Kind: KindEmail})
		return redact.Marker
	})
	res.Clean = ssnPattern.ReplaceAllStringFunc(res.Clean, func(m string) string {
		res.Findings = append(res.Findings, Finding{Kind: KindSSN})
		return redact.Marker
	})
	res.Clean = creditCardPattern.ReplaceAllStringFunc(res.Clean, func(m string) string {
		res.Findings = append(res.Findings, Finding{Kind: KindCreditCard})
		return redact.Marker
	})

	for _, p := range sqlInjectionPatterns {
		if m := p.FindString(text); m != "" {
			res.Findings = append(res.Findings, Finding{Kind: KindSQLInjection, Match: truncate(m, 64)})
			res.Safe = false
		}
	}

	s.scanInjection(ctx, text, &res)
	return res
}

// SanitizeContext walks a free-form context map: sensitive-keyed values
// are redacted outright, string values go through message sanitization.
// The returned bool is false if any value was injection-shaped.
func (s *Sanitizer) SanitizeContext(ctx context.Context, m map[string]any) (map[string]any, []Finding, bool) {
	var findings []Finding
	safe := true

	var walk func(v any, key string) any
	walk = func(v any, key string) any {
		if key != "" && redact.IsSensitiveKey(key) {
			findings = append(findings, Finding{Kind: KindCredential, Match: key})
			return redact.Marker
		}
		switch t := v.(type) {
		case map[string]any:
			out := make(map[string]any, len(t))
			for k, val := range t {
				out[k] = walk(val, k)
			}
			return out
		case []any:
			out := make([]any, len(t))
			for i, val := range t {
				out[i] = walk(val, "")
			}
			return out
		case string:
			res := s.SanitizeMessage(ctx, t)
			findings = append(findings, res.Findings...)
			if !res.Safe {
				safe = false
			}
			return res.Clean
		default:
			return v
		}
	}

	clean := walk(m, "").(map[string]any)
	return clean, findings, safe
}

// scanInjection runs Aguara's built-in rules and escalates high-severity
// hits to unsafe. Scan errors fail open: heuristics above still apply.
func (s *Sanitizer) scanInjection(ctx context.Context, text string, res *Result) {
	result, err := aguara.ScanContent(ctx, text, "message.md", s.opts...)
	if err != nil {
		s.logger.Error("injection scan failed", "error", err)
		return
	}
	for _, f := range result.Findings {
		res.Findings = append(res.Findings, Finding{
			Kind:   KindPromptInjection,
			Match:  truncate(f.MatchedText, 64),
			RuleID: f.RuleID,
		})
		if f.Severity >= aguara.SeverityHigh {
			res.Safe = false
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
