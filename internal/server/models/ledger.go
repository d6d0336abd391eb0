package models

import "time"

// LedgerTransaction records one committed balance change. Amount is signed:
// negative for deductions, positive for refunds and purchases.
type LedgerTransaction struct {
	ID           string
	AccountID    string
	Amount       int64
	Action       string
	BalanceAfter int64
	CreatedAt    time.Time
}

// CaptureResult is returned by a committed atomic capture.
type CaptureResult struct {
	InsertedIDs []string
	NewBalance  int64
}
