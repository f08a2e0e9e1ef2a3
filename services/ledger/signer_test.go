package ledger

import (
	"testing"

	"filippo.io/age"
)

func TestSignerRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	signer, err := NewSigner(identity.String(), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	payload := []byte("archive manifest payload")
	signature, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := signer.Verify(payload, signature); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := signer.Verify([]byte("different payload"), signature); err == nil {
		t.Fatal("expected verification to fail for a different payload")
	}
}

func TestSignerPublicKeyOnly(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	full, err := NewSigner(identity.String(), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	payload := []byte("payload")
	signature, err := full.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verifier, err := NewSigner("", full.PublicKeyBase64())
	if err != nil {
		t.Fatalf("NewSigner public-only: %v", err)
	}
	if err := verifier.Verify(payload, signature); err != nil {
		t.Fatalf("public-only verification failed: %v", err)
	}
	if _, err := verifier.Sign(payload); err == nil {
		t.Fatal("expected signing without a private key to fail")
	}
}

func TestSignerRejectsMismatchedPublicKey(t *testing.T) {
	a, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	b, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	other, err := NewSigner(b.String(), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	if _, err := NewSigner(a.String(), other.PublicKeyBase64()); err == nil {
		t.Fatal("expected mismatched key pair to be rejected")
	}
}

func TestSignerRequiresKeyMaterial(t *testing.T) {
	if _, err := NewSigner("", ""); err == nil {
		t.Fatal("expected an error without any key material")
	}
	if _, err := NewSigner("not-a-bech32-key", ""); err == nil {
		t.Fatal("expected an error for a malformed secret key")
	}
	if _, err := NewSigner("", "!!!not-base64"); err == nil {
		t.Fatal("expected an error for a malformed public key")
	}
}
