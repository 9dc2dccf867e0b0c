package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignatureMismatch is returned when a presented signature does not match
// the expected digest.
var ErrSignatureMismatch = errors.New("payments: signature mismatch")

// Signer computes and verifies HMAC-SHA256 signatures for gateway callbacks
// and webhooks.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer from the shared gateway secret.
func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("payments: signing secret is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// SignCallback produces the hex digest for a payment callback. The signed
// message is "<orderID>|<paymentID>".
func (s *Signer) SignCallback(orderID, paymentID string) string {
	return s.sign([]byte(orderID + "|" + paymentID))
}

// VerifyCallback checks a callback signature in constant time.
func (s *Signer) VerifyCallback(orderID, paymentID, signature string) error {
	return s.verify([]byte(orderID+"|"+paymentID), signature)
}

// SignWebhook produces the hex digest over a raw webhook body.
func (s *Signer) SignWebhook(body []byte) string {
	return s.sign(body)
}

// VerifyWebhook checks a webhook signature against the raw request body.
func (s *Signer) VerifyWebhook(body []byte, signature string) error {
	return s.verify(body, signature)
}

func (s *Signer) sign(message []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) verify(message []byte, signature string) error {
	presented, err := decodeSignature(strings.TrimSpace(signature))
	if err != nil {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(message)
	if !hmac.Equal(presented, mac.Sum(nil)) {
		return ErrSignatureMismatch
	}
	return nil
}

// decodeSignature accepts hex or base64 encoded digests.
func decodeSignature(signature string) ([]byte, error) {
	if signature == "" {
		return nil, errors.New("payments: empty signature")
	}
	if decoded, err := hex.DecodeString(signature); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(signature); err == nil {
		return decoded, nil
	}
	return nil, errors.New("payments: undecodable signature")
}
