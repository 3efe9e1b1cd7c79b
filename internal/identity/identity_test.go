package identity

import (
	"strings"
	"testing"
)

func TestHashIDIsDeterministic(t *testing.T) {
	first := HashID("john@example.com")
	second := HashID("john@example.com")
	if first != second {
		t.Fatalf("expected stable hash, got %q then %q", first, second)
	}
}

func TestHashIDProducesHexDigest(t *testing.T) {
	for _, raw := range []string{"user123", "", "usuário@café.com", strings.Repeat("a", 1000)} {
		hashed := HashID(raw)
		if len(hashed) != 64 {
			t.Fatalf("expected 64 hex characters for %q, got %d", raw, len(hashed))
		}
		if strings.Trim(hashed, "0123456789abcdef") != "" {
			t.Fatalf("expected lowercase hex digest for %q, got %q", raw, hashed)
		}
	}
}

func TestHashIDSeparatesDistinctInputs(t *testing.T) {
	if HashID("user1") == HashID("user2") {
		t.Fatal("expected distinct inputs to produce distinct ids")
	}
}
