package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// APIKeyPrefix marks every key issued by this service; the suffix is 128
// bits of CSPRNG entropy, hex encoded.
const APIKeyPrefix = "tk_"

const apiKeyEntropyBytes = 16

// GenerateAPIKey produces a fresh tenant API key. Uniqueness is enforced by
// the registry's unique constraint; at 128 bits a collision is not a
// practical concern.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// ValidAPIKeyFormat reports whether s looks like a key issued by
// GenerateAPIKey.
func ValidAPIKeyFormat(s string) bool {
	if !strings.HasPrefix(s, APIKeyPrefix) {
		return false
	}
	suffix := strings.TrimPrefix(s, APIKeyPrefix)
	if len(suffix) != apiKeyEntropyBytes*2 {
		return false
	}
	_, err := hex.DecodeString(suffix)
	return err == nil
}
