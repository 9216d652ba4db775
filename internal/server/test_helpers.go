package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// makeTestSignature computes the raw-hex MAC the forge would send.
// Used by tests in this package.
func makeTestSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
