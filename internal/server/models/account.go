// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is a billable identity. Credits never go below zero; the
// database enforces it with a CHECK constraint.
type Account struct {
	ID        string
	Credits   int64
	IsActive  bool
	CreatedAt time.Time
}
