package auth

import "testing"

func TestVerifyPlaintextKey(t *testing.T) {
	store, err := NewKeyStore([]string{"sk-alpha", "sk-beta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !store.Verify("sk-alpha") || !store.Verify("sk-beta") {
		t.Error("configured keys must verify")
	}
	if store.Verify("sk-gamma") {
		t.Error("unknown key must not verify")
	}
	if store.Verify("") {
		t.Error("empty key must not verify")
	}
}

func TestVerifyPrehashedKey(t *testing.T) {
	hash, err := HashKey("sk-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store, err := NewKeyStore([]string{hash})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !store.Verify("sk-secret") {
		t.Error("key behind bcrypt hash must verify")
	}
	if store.Verify(hash) {
		t.Error("the hash itself must not verify as a key")
	}
}
