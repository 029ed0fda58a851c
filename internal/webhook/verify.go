// Package webhook verifies and normalizes inbound webhook deliveries,
// independent of any particular HTTP router.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signaturePrefix is the only accepted digest scheme.
const signaturePrefix = "sha256="

// Verify checks the authenticity of a raw webhook payload against the
// sha256= signature header. The HMAC is computed over the raw, unparsed
// bytes; parsing and re-serializing first would break verification
// whenever whitespace differs.
//
// The digest comparison is constant-time, with an immediate false on
// length mismatch. Neither the secret nor any digest is ever logged.
func Verify(payload []byte, signatureHeader, secret string) bool {
	if !strings.HasPrefix(signatureHeader, signaturePrefix) {
		return false
	}
	received := signatureHeader[len(signaturePrefix):]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(received) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(received), []byte(expected))
}
