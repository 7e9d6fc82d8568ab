package password

import (
	"strings"
	"testing"
)

func fastArgon2(t *testing.T) *Argon2 {
	t.Helper()
	h, err := NewArgon2(Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func TestArgon2HashAndVerify(t *testing.T) {
	h := fastArgon2(t)
	encoded, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}
	ok, err := h.Verify("P@ssw0rd-Ascii", encoded)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong-password", encoded)
	if err != nil || ok {
		t.Fatalf("expected wrong password to fail, ok=%v err=%v", ok, err)
	}
}

func TestArgon2RejectsWeakConfig(t *testing.T) {
	if _, err := NewArgon2(Argon2Config{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); err == nil {
		t.Fatal("expected low memory config to be rejected")
	}
}

func TestArgon2MalformedHash(t *testing.T) {
	h := fastArgon2(t)
	for _, bad := range []string{
		"",
		"$argon2id$v=19$m=8192,t=1,p=1$short",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
	} {
		if _, err := h.Verify("x", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak := fastArgon2(t)
	encoded, err := weak.Hash("upgrade-me")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	strong, err := NewArgon2(Argon2Config{Memory: 16 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	up, err := strong.NeedsUpgrade(encoded)
	if err != nil || !up {
		t.Fatalf("expected upgrade, got %v err=%v", up, err)
	}
	up, err = weak.NeedsUpgrade(encoded)
	if err != nil || up {
		t.Fatalf("expected no upgrade, got %v err=%v", up, err)
	}
}
