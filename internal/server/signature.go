package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signature header names. Gitea sends the raw hex MAC, GitHub prefixes it
// with "sha256="; both carry hex(HMAC-SHA256(secret, body)).
const (
	giteaSignatureHeader  = "X-Gitea-Signature"
	githubSignatureHeader = "X-Hub-Signature-256"
	githubSignaturePrefix = "sha256="
)

// Verify checks the webhook signature over the raw request body.
//
// Pure function of its inputs: the expected MAC is the lowercase hex
// HMAC-SHA256 of payload keyed by secret. A missing signature or a missing
// secret never verifies.
func Verify(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	received := strings.TrimPrefix(signature, githubSignaturePrefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks.
	return hmac.Equal([]byte(expected), []byte(received))
}

// requestSignature extracts the signature value from the request headers,
// preferring the Gitea form.
func requestSignature(get func(string) string) string {
	if v := get(giteaSignatureHeader); v != "" {
		return v
	}
	return get(githubSignatureHeader)
}
