// Package billing implements the credit ledger: atomic deduction and refund
// of account credits, and all-or-nothing capture of memory chunks together
// with their storage charge.
//
// Every money-moving operation runs inside one database transaction started
// on a detached context, so a client disconnect never interrupts it halfway.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/dbx"
	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/repomanager"
)

type Ledger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewLedger(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *Ledger {
	return &Ledger{db: db, repomanager: m, logger: logger.With("module", "billing")}
}

// Balance returns the current balance for display.
func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	b, err := l.repomanager.Ledger(l.db).Balance(ctx, accountID)
	if err != nil {
		return 0, storeFault(err)
	}
	return b, nil
}

// Check reports whether the account currently holds at least amount credits.
//
// The answer is stale the moment it is returned. Never use it to decide
// whether to call Deduct: a concurrent request can spend the credits in
// between. Deduct performs its own check atomically.
func (l *Ledger) Check(ctx context.Context, accountID string, amount int64) (bool, error) {
	b, err := l.Balance(ctx, accountID)
	if err != nil {
		return false, err
	}
	return b >= amount, nil
}

// Deduct atomically removes amount credits and records the transaction.
// It fails with common.ErrInsufficientCredits when the balance is short and
// nothing is deducted in that case.
func (l *Ledger) Deduct(ctx context.Context, accountID string, amount int64, action string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative amount", common.ErrValidation)
	}

	balance, err := dbx.WithTxValue(dbx.Detached(ctx), l.db, nil, func(ctx context.Context, tx dbx.DBTX) (int64, error) {
		repo := l.repomanager.Ledger(tx)
		b, err := repo.DeductIfSufficient(ctx, accountID, amount)
		if err != nil {
			return 0, err
		}
		return b, repo.Record(ctx, &models.LedgerTransaction{
			AccountID: accountID, Amount: -amount, Action: action, BalanceAfter: b,
		})
	})
	if err != nil {
		err = storeFault(err)
		if errors.Is(err, common.ErrServiceUnavailable) {
			l.logger.Error(ctx, "deduct failed", "account", common.ShortID(accountID), "action", action, "error", err)
		}
		return 0, err
	}

	l.logger.Debug(ctx, "deducted", "account", common.ShortID(accountID), "amount", amount, "action", action, "balance", balance)
	return balance, nil
}

// Refund atomically adds amount credits. It is also the generic credit
// primitive used for purchases.
func (l *Ledger) Refund(ctx context.Context, accountID string, amount int64, action string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative amount", common.ErrValidation)
	}

	balance, err := dbx.WithTxValue(dbx.Detached(ctx), l.db, nil, func(ctx context.Context, tx dbx.DBTX) (int64, error) {
		repo := l.repomanager.Ledger(tx)
		b, err := repo.Credit(ctx, accountID, amount)
		if err != nil {
			return 0, err
		}
		return b, repo.Record(ctx, &models.LedgerTransaction{
			AccountID: accountID, Amount: amount, Action: action, BalanceAfter: b,
		})
	})
	if err != nil {
		err = storeFault(err)
		l.logger.Error(ctx, "refund failed", "account", common.ShortID(accountID), "action", action, "error", err)
		return 0, err
	}

	l.logger.Info(ctx, "credited", "account", common.ShortID(accountID), "amount", amount, "action", action, "balance", balance)
	return balance, nil
}

// CaptureAtomic deducts totalCost and inserts every chunk in one
// transaction. Either all chunks are stored and the cost is charged, or
// nothing is written at all, so failures never need a compensating refund.
//
// Failures surface as common.ErrInsufficientCredits or common.ErrCaptureFailed.
func (l *Ledger) CaptureAtomic(ctx context.Context, accountID string, totalCost int64, chunks []*models.MemoryChunk, action string) (*models.CaptureResult, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to capture", common.ErrValidation)
	}
	if totalCost < 0 {
		return nil, fmt.Errorf("%w: negative amount", common.ErrValidation)
	}

	res, err := dbx.WithTxValue(dbx.Detached(ctx), l.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.CaptureResult, error) {
		ledger := l.repomanager.Ledger(tx)
		mems := l.repomanager.Memories(tx)

		balance, err := ledger.DeductIfSufficient(ctx, accountID, totalCost)
		if err != nil {
			return nil, err
		}

		ids := make([]string, 0, len(chunks))
		for i, c := range chunks {
			c.AccountID = accountID
			id, err := mems.Insert(ctx, c)
			if err != nil {
				return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			ids = append(ids, id)
		}

		err = ledger.Record(ctx, &models.LedgerTransaction{
			AccountID: accountID, Amount: -totalCost, Action: action, BalanceAfter: balance,
		})
		if err != nil {
			return nil, err
		}
		return &models.CaptureResult{InsertedIDs: ids, NewBalance: balance}, nil
	})
	if err != nil {
		if errors.Is(err, common.ErrInsufficientCredits) {
			return nil, common.ErrInsufficientCredits
		}
		l.logger.Error(ctx, "capture rolled back", "account", common.ShortID(accountID), "chunks", len(chunks), "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrCaptureFailed, err)
	}

	l.logger.Info(ctx, "captured", "account", common.ShortID(accountID), "chunks", len(res.InsertedIDs), "cost", totalCost, "balance", res.NewBalance)
	return res, nil
}

// storeFault keeps the ledger's own failures and turns everything else into
// common.ErrServiceUnavailable.
func storeFault(err error) error {
	switch {
	case errors.Is(err, common.ErrInsufficientCredits),
		errors.Is(err, common.ErrAccountNotFound),
		errors.Is(err, common.ErrValidation):
		return err
	default:
		return fmt.Errorf("%w: %v", common.ErrServiceUnavailable, err)
	}
}
