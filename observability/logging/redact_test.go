package logging

import "testing"

func TestMaskFieldRedactsUnknownKeys(t *testing.T) {
	attr := MaskField("token", "super-secret")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("token value = %q, want redacted", attr.Value.String())
	}
	attr = MaskField("method", "find_mortgage")
	if attr.Value.String() != "find_mortgage" {
		t.Fatalf("allowlisted key was redacted: %q", attr.Value.String())
	}
	// Empty values pass through to keep logs quiet.
	attr = MaskField("token", "")
	if attr.Value.String() != "" {
		t.Fatalf("empty value changed: %q", attr.Value.String())
	}
}

func TestAllowlistContainsLogEnvelopeKeys(t *testing.T) {
	for _, key := range []string{"service", "severity", "timestamp", "message", "method", "status"} {
		if !IsAllowlisted(key) {
			t.Fatalf("key %q missing from allowlist", key)
		}
	}
	if IsAllowlisted("authorization") {
		t.Fatal("authorization must never be allowlisted")
	}
	keys := RedactionAllowlist()
	if len(keys) == 0 {
		t.Fatal("allowlist is empty")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatal("allowlist is not sorted")
		}
	}
}
