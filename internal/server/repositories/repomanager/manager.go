package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/claimgate/internal/dbx"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/apikeys"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/memories"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/verificationlogs"
)

// RepositoryManager vends repositories bound to a DBTX so callers can run the
// same repository against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	APIKeys(db dbx.DBTX) apikeys.Repository
	Ledger(db dbx.DBTX) ledger.Repository
	Memories(db dbx.DBTX) memories.Repository
	VerificationLogs(db dbx.DBTX) verificationlogs.Repository
}
