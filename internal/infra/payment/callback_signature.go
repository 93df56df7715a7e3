package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/ports/adapter"
)

var _ adapter.CallbackVerifier = (*HMACVerifier)(nil)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body.
const SignatureHeader = "QuickPay-Checksum-Sha256"

// Sign returns the checksum the gateway sends for body.
func Sign(privateKey string, body []byte) string {
	h := hmac.New(sha256.New, []byte(privateKey))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyCallbackSignature checks header against the exact raw body. A missing
// header or key is unauthorized, never an error.
func VerifyCallbackSignature(privateKey string, body []byte, header string) bool {
	header = strings.ToLower(strings.TrimSpace(header))
	if header == "" || privateKey == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(privateKey, body)), []byte(header))
}

// HMACVerifier checks callbacks with the account private key.
type HMACVerifier struct {
	privateKey string
}

func NewHMACVerifier(privateKey string) *HMACVerifier {
	return &HMACVerifier{privateKey: privateKey}
}

func (v *HMACVerifier) Verify(body []byte, signature string) error {
	if strings.TrimSpace(signature) == "" {
		return domain.ErrMissingSignature
	}
	if !VerifyCallbackSignature(v.privateKey, body, signature) {
		return domain.ErrSignatureMismatch
	}
	return nil
}
