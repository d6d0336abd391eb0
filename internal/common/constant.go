// Package common contains shared constants and sentinel errors used across
// claimgate components.
package common

// Request headers that carry caller credentials.
const (
	APIKeyHeaderName        = "X-API-Key"
	AuthorizationHeaderName = "Authorization"
	BearerPrefix            = "Bearer "
)

// APIKeyPrefix marks every issued API key.
const APIKeyPrefix = "sk-layers-"

// Verdict labels.
const (
	ResultTrue      = "TRUE"
	ResultFalse     = "FALSE"
	ResultUncertain = "UNCERTAIN"
	ResultError     = "ERROR"
)
