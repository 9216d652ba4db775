// Package security holds webhook secret generation and validation.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

const (
	// MinSecretLength is the minimum accepted webhook secret length.
	MinSecretLength = 32

	// MinEntropy is the minimum Shannon entropy for a webhook secret.
	MinEntropy = 3.0
)

// Placeholder fragments that indicate a secret was never replaced.
var placeholderFragments = []string{"replace", "changeme", "topsecret", "password", "example"}

// GenerateSecret returns a cryptographically random, URL-safe secret string.
func GenerateSecret() (string, error) {
	raw := make([]byte, 36)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// ValidateSecret rejects secrets that are too short, look like placeholders,
// or carry too little entropy to resist guessing.
func ValidateSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("secret too short (minimum %d characters, got %d)", MinSecretLength, len(secret))
	}

	lower := strings.ToLower(secret)
	for _, fragment := range placeholderFragments {
		if strings.Contains(lower, fragment) {
			return fmt.Errorf("secret looks like a placeholder value")
		}
	}

	if entropy := shannonEntropy(secret); entropy < MinEntropy {
		return fmt.Errorf("secret has insufficient entropy (%.2f < %.2f)", entropy, MinEntropy)
	}
	return nil
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	var entropy float64
	length := float64(len(s))
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
