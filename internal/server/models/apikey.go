package models

import "time"

// APIKey is the stored form of an issued credential. The raw secret is never
// persisted: KeyHash is a bcrypt hash proving possession and LookupHash is
// a SHA-256 fingerprint used for indexed lookup. LookupHash is empty on
// legacy rows until they are backfilled on first successful use.
type APIKey struct {
	ID         string
	AccountID  string
	Name       string
	KeyHash    string
	LookupHash string
	KeyPrefix  string
	IsActive   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}
