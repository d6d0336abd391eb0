// Package cryptox holds the hashing primitives used for API key storage:
// a fast deterministic fingerprint for indexed lookup and a slow salted
// bcrypt hash that proves possession of the secret.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// apiKeyEntropy is the number of random bytes behind every issued key.
const apiKeyEntropy = 32

// displayPrefixLen is how much of a key is kept in clear for dashboards.
const displayPrefixLen = 20

// LookupFingerprint returns the hex SHA-256 of secret. It is only an index
// key; possession is always proven with VerifySecret.
func LookupFingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// HashSecret produces a bcrypt hash of secret. cost <= 0 selects
// bcrypt.DefaultCost.
func HashSecret(secret string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifySecret reports whether secret matches the bcrypt hash. Malformed
// hashes never match.
func VerifySecret(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// GenerateAPIKey returns a new raw API key. The raw value is shown to the
// owner exactly once and never stored.
func GenerateAPIKey() (string, error) {
	body, err := common.MakeRandURLSafeString(apiKeyEntropy)
	if err != nil {
		return "", err
	}
	return common.APIKeyPrefix + body, nil
}

// DisplayPrefix returns the non-secret part of a key suitable for listing.
func DisplayPrefix(key string) string {
	if len(key) <= displayPrefixLen {
		return key
	}
	return key[:displayPrefixLen] + "..."
}
