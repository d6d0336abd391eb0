package common

import (
	"crypto/rand"
	"encoding/base64"
)

// MakeRandURLSafeString returns size random bytes encoded with unpadded
// url-safe base64.
func MakeRandURLSafeString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TruncateRunes cuts s to at most n characters and appends suffix when
// anything was removed.
func TruncateRunes(s string, n int, suffix string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + suffix
}

// ShortID returns the first 8 characters of an id for log output.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
