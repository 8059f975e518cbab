// Package auth manages the API tokens guarding the HTTP server.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyIDPrefix is the prefix for token IDs
	KeyIDPrefix = "hl_key_"

	// TokenPrefix is the prefix for bearer tokens
	TokenPrefix = "hl_sk_" // #nosec G101 // Not a credential, just a prefix pattern

	// TokenPrefixLength is the number of characters stored for lookup
	TokenPrefixLength = 8

	keyIDLength = 8
	tokenLength = 32
	bcryptCost  = 12
)

// GenerateKeyID generates a new unique token ID
// Format: hl_key_<16 hex chars>
func GenerateKeyID() (string, error) {
	bytes := make([]byte, keyIDLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate key ID: %w", err)
	}
	return KeyIDPrefix + hex.EncodeToString(bytes), nil
}

// GenerateToken generates a new bearer token.
// Returns the raw token and its lookup prefix.
func GenerateToken() (string, string, error) {
	bytes := make([]byte, tokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	hexToken := hex.EncodeToString(bytes)
	return TokenPrefix + hexToken, hexToken[:TokenPrefixLength], nil
}

// HashToken creates a bcrypt hash of a token's secret part
func HashToken(token string) (string, error) {
	secret := strings.TrimPrefix(token, TokenPrefix)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// VerifyToken checks if a token matches a hash
func VerifyToken(token, hash string) bool {
	secret := strings.TrimPrefix(token, TokenPrefix)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// ExtractTokenPrefix returns the lookup prefix of a full token
func ExtractTokenPrefix(token string) string {
	secret := strings.TrimPrefix(token, TokenPrefix)
	if len(secret) < TokenPrefixLength {
		return secret
	}
	return secret[:TokenPrefixLength]
}

// IsValidTokenFormat checks if a token has the expected shape
func IsValidTokenFormat(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	secret := strings.TrimPrefix(token, TokenPrefix)
	if len(secret) != tokenLength*2 {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}

// MaskToken returns a masked version of a token for display
func MaskToken(token string) string {
	if len(token) < len(TokenPrefix)+TokenPrefixLength {
		return "****"
	}
	return token[:len(TokenPrefix)+TokenPrefixLength] + "****...****"
}
