package credential

import (
	"testing"

	"github.com/99designs/keyring"
)

func TestKeyringRoundTrip(t *testing.T) {
	k := NewKeyring(keyring.NewArrayKeyring(nil))

	token, err := k.Get()
	if err != nil {
		t.Fatalf("Get on empty keyring: %v", err)
	}
	if token != "" {
		t.Fatalf("expected no token, got %q", token)
	}

	if err := k.Set("abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	token, err = k.Get()
	if err != nil || token != "abc" {
		t.Fatalf("expected abc, got %q (%v)", token, err)
	}

	if err := k.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := k.Delete(); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	token, _ = k.Get()
	if token != "" {
		t.Fatalf("expected token to be gone, got %q", token)
	}
}
