package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/dbx"
	"github.com/dmitrijs2005/claimgate/internal/server/archive"
	"github.com/dmitrijs2005/claimgate/internal/server/evidence"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/apikeys"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/memories"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/verificationlogs"
)

// -------- repository fakes --------

type fakeManager struct {
	accounts *fakeAccountsRepo
	keys     *fakeKeysRepo
	memories *fakeMemoriesRepo
	logs     *fakeLogsRepo
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		accounts: &fakeAccountsRepo{},
		keys:     &fakeKeysRepo{},
		memories: &fakeMemoriesRepo{},
		logs:     &fakeLogsRepo{},
	}
}

func (m *fakeManager) RunMigrations(context.Context, *sql.DB) error          { return nil }
func (m *fakeManager) Accounts(dbx.DBTX) accounts.Repository                 { return m.accounts }
func (m *fakeManager) APIKeys(dbx.DBTX) apikeys.Repository                   { return m.keys }
func (m *fakeManager) Ledger(dbx.DBTX) ledger.Repository                     { return nil }
func (m *fakeManager) Memories(dbx.DBTX) memories.Repository                 { return m.memories }
func (m *fakeManager) VerificationLogs(dbx.DBTX) verificationlogs.Repository { return m.logs }

type fakeAccountsRepo struct {
	accounts.Repository
	getErr error
}

func (f *fakeAccountsRepo) Get(_ context.Context, id string) (*models.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.Account{ID: id, IsActive: true}, nil
}

type fakeKeysRepo struct {
	apikeys.Repository
	created     []*models.APIKey
	list        []*models.APIKey
	listErr     error
	deactivated []string
}

func (f *fakeKeysRepo) Create(_ context.Context, k *models.APIKey) (*models.APIKey, error) {
	k.ID = "key-1"
	k.IsActive = true
	f.created = append(f.created, k)
	return k, nil
}

func (f *fakeKeysRepo) ListByAccount(context.Context, string) ([]*models.APIKey, error) {
	return f.list, f.listErr
}

func (f *fakeKeysRepo) Deactivate(_ context.Context, id, _ string) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

type fakeMemoriesRepo struct {
	memories.Repository
	params    memories.SearchParams
	results   []*models.MemoryMatch
	searchErr error
}

func (f *fakeMemoriesRepo) Search(_ context.Context, p memories.SearchParams) ([]*models.MemoryMatch, error) {
	f.params = p
	return f.results, f.searchErr
}

type fakeLogsRepo struct {
	mu   sync.Mutex
	rows []*models.VerificationLog
	err  error
}

func (f *fakeLogsRepo) Insert(_ context.Context, l *models.VerificationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, l)
	return nil
}

// -------- collaborator fakes --------

type deduction struct {
	amount int64
	action string
}

type capture struct {
	cost   int64
	chunks []*models.MemoryChunk
	action string
}

type fakeLedger struct {
	mu         sync.Mutex
	balance    int64
	deductions []deduction
	captures   []capture
	deductErr  error
	captureErr error
}

func (f *fakeLedger) Deduct(_ context.Context, _ string, amount int64, action string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deductErr != nil {
		return 0, f.deductErr
	}
	if amount > f.balance {
		return 0, common.ErrInsufficientCredits
	}
	f.balance -= amount
	f.deductions = append(f.deductions, deduction{amount, action})
	return f.balance, nil
}

func (f *fakeLedger) CaptureAtomic(_ context.Context, _ string, cost int64, chunks []*models.MemoryChunk, action string) (*models.CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	if cost > f.balance {
		return nil, common.ErrInsufficientCredits
	}
	f.balance -= cost
	f.captures = append(f.captures, capture{cost, chunks, action})
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = "mem-" + string(rune('a'+i))
	}
	return &models.CaptureResult{InsertedIDs: ids, NewBalance: f.balance}, nil
}

type fakeVerifier struct {
	result *models.VerificationResult
	claim  string
	input  string
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, claim, evidence string) *models.VerificationResult {
	f.calls++
	f.claim, f.input = claim, evidence
	res := *f.result
	res.Claim = claim
	if res.Evidence == "" {
		res.Evidence = evidence
	}
	return &res
}

type fakeEmbedder struct {
	mu     sync.Mutex
	inputs []string
	failOn string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
	if f.failOn != "" && text == f.failOn {
		return nil, errors.New("ollama down")
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeFetcher struct {
	page *evidence.Page
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*evidence.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.page
	p.URL = url
	return &p, nil
}

type fakeArchive struct {
	stored   []*archive.Snapshot
	storeErr error
}

func (f *fakeArchive) Store(_ context.Context, snap *archive.Snapshot) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.stored = append(f.stored, snap)
	return "snapshots/x/page.html", nil
}

func (f *fakeArchive) URL(_ context.Context, key string) (string, error) {
	return "https://s3.local/" + key + "?sig", nil
}

type fakeKeyCache struct {
	deleted []string
}

func (f *fakeKeyCache) Delete(key string) {
	f.deleted = append(f.deleted, key)
}
