package idgen

import (
	"testing"
	"time"
)

func TestGenerateHashIDVector(t *testing.T) {
	timestamp := time.Date(2024, 1, 2, 3, 4, 5, 6*1_000_000, time.UTC)

	tests := map[int]string{
		0: "trl-ab7370",
		1: "trl-27945a",
	}
	for nonce, expected := range tests {
		got := GenerateHashID("trl", "Fix login", "alice", timestamp, nonce)
		if got != expected {
			t.Fatalf("nonce %d: got %s, want %s", nonce, got, expected)
		}
	}
}

func TestGenerateHashIDShape(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for nonce := 0; nonce < MaxAttempts; nonce++ {
		id := GenerateHashID("proj", "title", "", now, nonce)
		prefix, hash, ok := SplitID(id)
		if !ok {
			t.Fatalf("SplitID(%q) failed", id)
		}
		if prefix != "proj" || len(hash) != HashLength {
			t.Fatalf("unexpected parts %q %q", prefix, hash)
		}
		seen[id] = true
	}
	if len(seen) < MaxAttempts-1 {
		t.Fatalf("nonces produced too few distinct ids: %d", len(seen))
	}
}

func TestSplitIDRejects(t *testing.T) {
	for _, id := range []string{"", "trl", "trl-ABCDEF", "trl-12345", "trl-1234567", "-abcdef", "Trl-abcdef"} {
		if _, _, ok := SplitID(id); ok {
			t.Errorf("SplitID(%q) accepted", id)
		}
	}
}

func TestPrefixHelpers(t *testing.T) {
	if got := NormalizePrefix(" Proj- "); got != "proj" {
		t.Errorf("NormalizePrefix = %q", got)
	}
	if !ValidPrefix("my_proj2") {
		t.Error("my_proj2 should be valid")
	}
	for _, p := range []string{"", "has space", "UP", "-x"} {
		if ValidPrefix(p) {
			t.Errorf("ValidPrefix(%q) = true", p)
		}
	}
}
