package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptVerify(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)
	encoded, err := h.Hash("admin123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !h.Recognizes(encoded) {
		t.Fatalf("expected bcrypt prefix, got %s", encoded)
	}
	if ok, err := h.Verify("admin123", encoded); err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	if ok, err := h.Verify("admin124", encoded); err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
	if _, err := h.Verify("admin123", "$2a$garbage"); err == nil {
		t.Fatal("expected malformed hash error")
	}
}

func TestBcryptDefaultCost(t *testing.T) {
	h := NewBcrypt(0)
	if h.cost != DefaultBcryptCost {
		t.Fatalf("expected default cost %d, got %d", DefaultBcryptCost, h.cost)
	}
}

func TestMultiDispatchesByPrefix(t *testing.T) {
	b := NewBcrypt(bcrypt.MinCost)
	a := fastArgon2(t)
	m := NewMulti(b, a)

	legacy, err := a.Hash("from-argon")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if ok, err := m.Verify("from-argon", legacy); err != nil || !ok {
		t.Fatalf("expected argon2 hash to verify through Multi, ok=%v err=%v", ok, err)
	}
	up, err := m.NeedsUpgrade(legacy)
	if err != nil || !up {
		t.Fatalf("expected legacy scheme to need upgrade, got %v err=%v", up, err)
	}

	current, err := m.Hash("from-bcrypt")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if up, err := m.NeedsUpgrade(current); err != nil || up {
		t.Fatalf("expected primary hash to be current, got %v err=%v", up, err)
	}

	if _, err := m.Verify("x", "plaintext"); err != ErrUnknownScheme {
		t.Fatalf("expected ErrUnknownScheme, got %v", err)
	}
}
