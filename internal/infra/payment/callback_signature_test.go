//go:build !integration

package payment

import (
	"errors"
	"testing"

	"coolpay-gateway/internal/domain"
)

func TestVerifyCallbackSignature(t *testing.T) {
	const key = "private-key"
	body := []byte(`{"id":1,"accepted":true,"operations":[{"type":"authorize"}]}`)
	sig := Sign(key, body)

	if !VerifyCallbackSignature(key, body, sig) {
		t.Fatalf("valid signature rejected")
	}
	if !VerifyCallbackSignature(key, body, " "+sig+"\n") {
		t.Fatalf("surrounding whitespace should not matter")
	}

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		if VerifyCallbackSignature(key, tampered, sig) {
			t.Fatalf("byte %d flipped but signature still verified", i)
		}
	}

	if VerifyCallbackSignature(key, body, "") {
		t.Errorf("empty header must be unauthorized")
	}
	if VerifyCallbackSignature("other-key", body, sig) {
		t.Errorf("wrong key must be unauthorized")
	}
	if VerifyCallbackSignature("", body, sig) {
		t.Errorf("empty key must be unauthorized")
	}
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("k")
	body := []byte(`{"id":2}`)

	if err := v.Verify(body, Sign("k", body)); err != nil {
		t.Fatalf("Verify() = %v", err)
	}
	if err := v.Verify(body, "  "); !errors.Is(err, domain.ErrMissingSignature) {
		t.Errorf("missing header: got %v", err)
	}
	if err := v.Verify(body, Sign("x", body)); !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Errorf("mismatch: got %v", err)
	}
}
