package secret

import (
	"encoding/hex"
	"testing"
)

func TestGenerateSecureTokenLength(t *testing.T) {
	for _, n := range []int{ResetTokenBytes, RefreshTokenBytes, 1} {
		tok, err := GenerateSecureToken(n)
		if err != nil {
			t.Fatalf("GenerateSecureToken(%d) failed: %v", n, err)
		}
		if len(tok) != n*2 {
			t.Fatalf("expected %d hex chars, got %d", n*2, len(tok))
		}
		if _, err := hex.DecodeString(tok); err != nil {
			t.Fatalf("token is not hex: %v", err)
		}
	}
}

func TestGenerateSecureTokenRejectsNonPositive(t *testing.T) {
	if _, err := GenerateSecureToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestGenerateSecureTokenUnique(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		tok, err := GenerateSecureToken(ResetTokenBytes)
		if err != nil {
			t.Fatalf("GenerateSecureToken failed: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestHashOpaqueTokenDeterministic(t *testing.T) {
	a := HashOpaqueToken("token-value")
	b := HashOpaqueToken("token-value")
	if a != b {
		t.Fatal("expected deterministic digest")
	}
	if a == "token-value" {
		t.Fatal("digest must not equal input")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if HashOpaqueToken("other") == a {
		t.Fatal("expected different inputs to digest differently")
	}
}
