package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Secrets is the set of signing secrets the server needs
type Secrets struct {
	JWTAccess     string
	JWTRefresh    string
	WebhookSecret string
	TokenKey      string // seals stored meeting-provider tokens
}

// GenerateSecrets generates independent 256-bit secrets for JWT signing,
// webhook verification and token sealing
func GenerateSecrets() (*Secrets, error) {
	var s Secrets
	for _, target := range []*string{&s.JWTAccess, &s.JWTRefresh, &s.WebhookSecret, &s.TokenKey} {
		secret, err := GenerateSecret(32)
		if err != nil {
			return nil, err
		}
		*target = secret
	}
	return &s, nil
}
