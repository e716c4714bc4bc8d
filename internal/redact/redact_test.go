package redact

import (
	"strings"
	"testing"
)

func TestIsSensitiveKey(t *testing.T) {
	sensitive := []string{"password", "API_KEY", "user_password", "x-api-key-header", "ssn", "credit_card_number", "AccessToken"}
	for _, k := range sensitive {
		if !IsSensitiveKey(k) {
			t.Errorf("IsSensitiveKey(%q) = false, want true", k)
		}
	}
	clean := []string{"entity", "name", "status", "count", "severity"}
	for _, k := range clean {
		if IsSensitiveKey(k) {
			t.Errorf("IsSensitiveKey(%q) = true, want false", k)
		}
	}
}

func TestTreeRedactsNested(t *testing.T) {
	in := map[string]any{
		"entity": "db1",
		"auth": map[string]any{
			"api_key": "sk-123",
			"region":  "us-east",
		},
		"items": []any{
			map[string]any{"token": "abc", "id": 7},
		},
	}

	out := Tree(in).(map[string]any)

	if out["entity"] != "db1" {
		t.Errorf("entity = %v, want db1", out["entity"])
	}
	auth := out["auth"].(map[string]any)
	if auth["api_key"] != Marker {
		t.Errorf("api_key = %v, want marker", auth["api_key"])
	}
	if auth["region"] != "us-east" {
		t.Errorf("region = %v, want us-east", auth["region"])
	}
	item := out["items"].([]any)[0].(map[string]any)
	if item["token"] != Marker {
		t.Errorf("nested token = %v, want marker", item["token"])
	}
	if item["id"] != 7 {
		t.Errorf("nested id = %v, want 7", item["id"])
	}

	// Original untouched
	if in["auth"].(map[string]any)["api_key"] != "sk-123" {
		t.Error("Tree mutated its input")
	}
}

func TestDigestChangesAfterRedaction(t *testing.T) {
	raw := map[string]any{"api_key": "sk-123", "entity": "db1"}
	if Digest(raw) == Digest(Tree(raw)) {
		t.Error("digest of redacted input equals digest of raw input")
	}
}

func TestDigestStable(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}
	if Digest(a) != Digest(b) {
		t.Error("digest is not key-order independent")
	}
}

func TestSummarize(t *testing.T) {
	resp := map[string]any{
		"status":   "ok",
		"findings": []any{1, 2, 3},
		"detail":   "a very long raw payload that must not be retained",
	}
	sum := Summarize(resp).(map[string]any)

	if sum["status"] != "ok" {
		t.Errorf("status = %v, want ok", sum["status"])
	}
	if sum["findings_count"] != 3 {
		t.Errorf("findings_count = %v, want 3", sum["findings_count"])
	}
	if _, ok := sum["detail"]; ok {
		t.Error("raw detail string retained in summary")
	}
}

func TestMaskText(t *testing.T) {
	in := `dial failed: api_key=sk-live-42 password: hunter2 host=db1`
	out := MaskText(in)

	if strings.Contains(out, "sk-live-42") || strings.Contains(out, "hunter2") {
		t.Errorf("secrets survived masking: %q", out)
	}
	if !strings.Contains(out, "host=db1") {
		t.Errorf("non-secret pair was masked: %q", out)
	}
}
