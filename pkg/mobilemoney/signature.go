package mobilemoney

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "x-provider-signature"

// ComputeSignature returns the lowercase hex HMAC-SHA512 of raw keyed by secret.
func ComputeSignature(raw []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares header against the expected signature in constant time.
func VerifySignature(raw []byte, header, secret string) bool {
	header = strings.ToLower(strings.TrimSpace(header))
	if header == "" || secret == "" {
		return false
	}
	expected := ComputeSignature(raw, secret)
	return hmac.Equal([]byte(expected), []byte(header))
}

// VerifySignature checks a webhook body against the configured signing secret.
func (c *Client) VerifySignature(raw []byte, header string) bool {
	return VerifySignature(raw, header, c.signingSecret)
}
