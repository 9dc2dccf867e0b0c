package payments

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func TestSignerCallbackRoundTrip(t *testing.T) {
	signer, err := NewSigner("topsecret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	sig := signer.SignCallback("ord_123", "pay_456")
	if sig == "" {
		t.Fatalf("expected non-empty signature")
	}
	if err := signer.VerifyCallback("ord_123", "pay_456", sig); err != nil {
		t.Fatalf("verify callback: %v", err)
	}
}

func TestSignerCallbackMismatch(t *testing.T) {
	signer, err := NewSigner("topsecret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	sig := signer.SignCallback("ord_123", "pay_456")
	if err := signer.VerifyCallback("ord_123", "pay_999", sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}

	other, err := NewSigner("differentsecret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if err := other.VerifyCallback("ord_123", "pay_456", sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch for wrong secret, got %v", err)
	}
}

func TestSignerWebhookRoundTrip(t *testing.T) {
	signer, err := NewSigner("topsecret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"id":"pay_1"}}}`)
	sig := signer.SignWebhook(body)
	if err := signer.VerifyWebhook(body, sig); err != nil {
		t.Fatalf("verify webhook: %v", err)
	}

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = 'x'
	if err := signer.VerifyWebhook(tampered, sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch for tampered body, got %v", err)
	}
}

func TestSignerAcceptsBase64Signatures(t *testing.T) {
	signer, err := NewSigner("topsecret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	body := []byte("hello")
	raw, err := hex.DecodeString(signer.SignWebhook(body))
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}

	b64 := base64.StdEncoding.EncodeToString(raw)
	if err := signer.VerifyWebhook(body, b64); err != nil {
		t.Fatalf("verify base64 signature: %v", err)
	}
}

func TestSignerRejectsGarbageSignatures(t *testing.T) {
	signer, err := NewSigner("topsecret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	for _, sig := range []string{"", "!!!", "zzzz"} {
		if err := signer.VerifyCallback("ord_1", "pay_1", sig); !errors.Is(err, ErrSignatureMismatch) {
			t.Fatalf("signature %q: expected ErrSignatureMismatch, got %v", sig, err)
		}
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner("   "); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
