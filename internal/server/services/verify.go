package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/dbx"
	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/repomanager"
)

const logWriteTimeout = 5 * time.Second

type VerifyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	engine      Verifier
	ledger      Ledger
	cost        int64
	logger      logging.Logger

	pending sync.WaitGroup
}

func NewVerifyService(db *sql.DB, m repomanager.RepositoryManager, engine Verifier, ledger Ledger, cost int64, logger logging.Logger) *VerifyService {
	return &VerifyService{
		db:          db,
		repomanager: m,
		engine:      engine,
		ledger:      ledger,
		cost:        cost,
		logger:      logger.With("module", "verify"),
	}
}

// Verify renders a verdict and charges for it before returning. ERROR
// verdicts are not charged. When the charge fails the verdict is withheld
// and the ledger error is returned.
func (s *VerifyService) Verify(ctx context.Context, accountID, claim, evidence string) (*models.VerificationResult, error) {
	if strings.TrimSpace(claim) == "" {
		return nil, fmt.Errorf("%w: claim is required", common.ErrValidation)
	}

	res := s.engine.Verify(ctx, claim, evidence)

	if res.Result != common.ResultError && s.cost > 0 {
		if _, err := s.ledger.Deduct(ctx, accountID, s.cost, ActionVerifyClaim); err != nil {
			return nil, err
		}
	}

	s.record(ctx, accountID, res)
	return res, nil
}

// record writes the analytics row in the background. Failures are logged
// and otherwise ignored.
func (s *VerifyService) record(ctx context.Context, accountID string, res *models.VerificationResult) {
	entry := &models.VerificationLog{
		AccountID:  accountID,
		Claim:      res.Claim,
		Evidence:   res.Evidence,
		Result:     res.Result,
		Confidence: res.Confidence,
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(dbx.Detached(ctx), logWriteTimeout)
		defer cancel()

		if err := s.repomanager.VerificationLogs(s.db).Insert(ctx, entry); err != nil {
			s.logger.Warn(ctx, "verification log write failed", "account", common.ShortID(accountID), "error", err)
		}
	}()
}

// Wait blocks until all background log writes have finished.
func (s *VerifyService) Wait() {
	s.pending.Wait()
}
