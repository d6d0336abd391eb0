package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/cryptox"
	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	findByFingerprint = `FROM\s+api_keys\s+WHERE\s+lookup_hash\s*=\s*\$1`
	listUnmigrated    = `FROM\s+api_keys\s+WHERE\s+lookup_hash\s+IS\s+NULL`
	setLookupHash     = `UPDATE\s+api_keys\s+SET\s+lookup_hash`
	touchLastUsed     = `UPDATE\s+api_keys\s+SET\s+last_used_at`
	findPlaintext     = `FROM\s+accounts\s+WHERE\s+api_key\s*=\s*\$1`
)

var keyColumns = []string{"id", "account_id", "name", "key_hash", "lookup_hash", "key_prefix", "is_active", "created_at", "last_used_at"}

type fakeIdentity struct {
	calls   int
	results []identityResult
}

type identityResult struct {
	id  string
	err error
}

func (f *fakeIdentity) ValidateToken(_ context.Context, _ string) (string, error) {
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].id, f.results[i].err
}

type fixture struct {
	resolver *Resolver
	mock     sqlmock.Sqlmock
	clock    *fakeClock
	identity *fakeIdentity
}

func newFixture(t *testing.T, identity ...identityResult) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clk := newFakeClock()
	caches := Caches{
		Bearer:    NewTTLCache(300*time.Second, 1000, WithClock(clk.Now)),
		Keys:      NewTTLCache(60*time.Second, 0, WithClock(clk.Now)),
		Migration: NewTTLCache(60*time.Second, 0, WithClock(clk.Now)),
	}
	fi := &fakeIdentity{results: identity}
	return &fixture{
		resolver: NewResolver(db, repomanager.NewPostgresRepositoryManager(), fi, caches, 0, logging.Nop{}),
		mock:     mock,
		clock:    clk,
		identity: fi,
	}
}

func hashed(t *testing.T, secret string) string {
	t.Helper()
	h, err := cryptox.HashSecret(secret, bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func keyRow(id, account, hash string, lookup any, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(keyColumns).AddRow(id, account, "default", hash, lookup, "sk-layers-abc...", active, time.Now(), nil)
}

func TestResolve_NoCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Resolve(context.Background(), "", "")
	require.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestResolve_BearerCachedWithinTTL(t *testing.T) {
	f := newFixture(t, identityResult{id: "acc-1"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := f.resolver.Resolve(ctx, "tok", "")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", id)
	}
	assert.Equal(t, 1, f.identity.calls)
}

func TestResolve_BearerRevalidatedAfterTTL(t *testing.T) {
	f := newFixture(t, identityResult{id: "acc-1"})
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "tok", "")
	require.NoError(t, err)
	f.clock.Advance(299 * time.Second)
	_, err = f.resolver.Resolve(ctx, "tok", "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.identity.calls)

	f.clock.Advance(time.Second)
	_, err = f.resolver.Resolve(ctx, "tok", "")
	require.NoError(t, err)
	assert.Equal(t, 2, f.identity.calls)
}

func TestResolve_BearerFailureIsNotCached(t *testing.T) {
	f := newFixture(t,
		identityResult{err: fmt.Errorf("%w: timeout", common.ErrServiceUnavailable)},
		identityResult{id: "acc-1"},
	)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "tok", "")
	require.ErrorIs(t, err, common.ErrServiceUnavailable)

	id, err := f.resolver.Resolve(ctx, "tok", "")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id)
}

func TestResolve_BearerRejected(t *testing.T) {
	f := newFixture(t, identityResult{err: ErrInvalidToken})
	_, err := f.resolver.Resolve(context.Background(), "tok", "")
	require.ErrorIs(t, err, common.ErrForbidden)
	assert.Equal(t, 0, f.resolver.caches.Bearer.Len())
}

func TestResolve_BearerTakesPrecedence(t *testing.T) {
	f := newFixture(t, identityResult{id: "acc-jwt"})
	id, err := f.resolver.Resolve(context.Background(), "tok", "sk-layers-whatever")
	require.NoError(t, err)
	assert.Equal(t, "acc-jwt", id)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolve_APIKeyFingerprintPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := "sk-layers-fingerprinted"
	fp := cryptox.LookupFingerprint(key)

	f.mock.ExpectQuery(findByFingerprint).WithArgs(fp).WillReturnRows(keyRow("k1", "acc-1", hashed(t, key), fp, true))
	f.mock.ExpectExec(touchLastUsed).WithArgs("k1").WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := f.resolver.Resolve(ctx, "", key)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id)

	// cached: no further store round trips within the TTL
	f.clock.Advance(59 * time.Second)
	id, err = f.resolver.Resolve(ctx, "", key)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id)
	require.NoError(t, f.mock.ExpectationsWereMet())

	// expired: validated against the store again
	f.clock.Advance(time.Second)
	f.mock.ExpectQuery(findByFingerprint).WithArgs(fp).WillReturnRows(keyRow("k1", "acc-1", hashed(t, key), fp, true))
	f.mock.ExpectExec(touchLastUsed).WithArgs("k1").WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = f.resolver.Resolve(ctx, "", key)
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolve_InactiveKeyIsForbiddenAndNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := "sk-layers-inactive"
	fp := cryptox.LookupFingerprint(key)
	h := hashed(t, key)

	for i := 0; i < 2; i++ {
		f.mock.ExpectQuery(findByFingerprint).WithArgs(fp).WillReturnRows(keyRow("k1", "acc-1", h, fp, false))
		_, err := f.resolver.Resolve(ctx, "", key)
		require.ErrorIs(t, err, common.ErrForbidden)
	}
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolve_LegacyKeyIsBackfilledThenFoundByFingerprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := "sk-layers-legacy"
	fp := cryptox.LookupFingerprint(key)
	h := hashed(t, key)

	// first call: no fingerprint yet, found by scanning
	f.mock.ExpectQuery(findByFingerprint).WithArgs(fp).WillReturnError(sql.ErrNoRows)
	rows := sqlmock.NewRows(keyColumns).
		AddRow("k0", "acc-0", "default", hashed(t, "sk-layers-other"), nil, "p", true, time.Now(), nil).
		AddRow("k1", "acc-1", "default", h, nil, "p", true, time.Now(), nil)
	f.mock.ExpectQuery(listUnmigrated).WithArgs(100).WillReturnRows(rows)
	f.mock.ExpectExec(setLookupHash).WithArgs("k1", fp).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(touchLastUsed).WithArgs("k1").WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := f.resolver.Resolve(ctx, "", key)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id)
	require.NoError(t, f.mock.ExpectationsWereMet())

	// second call after the positive cache lapses: direct fingerprint hit
	f.clock.Advance(61 * time.Second)
	f.mock.ExpectQuery(findByFingerprint).WithArgs(fp).WillReturnRows(keyRow("k1", "acc-1", h, fp, true))
	f.mock.ExpectExec(touchLastUsed).WithArgs("k1").WillReturnResult(sqlmock.NewResult(0, 1))

	id, err = f.resolver.Resolve(ctx, "", key)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolve_FailedScanIsRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := "sk-layers-unknown"
	fp := cryptox.LookupFingerprint(key)

	f.mock.ExpectQuery(findByFingerprint).WithArgs(fp).WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery(listUnmigrated).WillReturnRows(sqlmock.NewRows(keyColumns))
	f.mock.ExpectQuery(findPlaintext).WithArgs(key).WillReturnError(sql.ErrNoRows)

	_, err := f.resolver.Resolve(ctx, "", key)
	require.ErrorIs(t, err, common.ErrForbidden)

	// within the marker TTL the scan is skipped
	f.mock.ExpectQuery(findByFingerprint).WithArgs(fp).WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery(findPlaintext).WithArgs(key).WillReturnError(sql.ErrNoRows)

	_, err = f.resolver.Resolve(ctx, "", key)
	require.ErrorIs(t, err, common.ErrForbidden)
	require.NoError(t, f.mock.ExpectationsWereMet())

	// after it the scan runs again
	f.clock.Advance(60 * time.Second)
	f.mock.ExpectQuery(findByFingerprint).WithArgs(fp).WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery(listUnmigrated).WillReturnRows(sqlmock.NewRows(keyColumns))
	f.mock.ExpectQuery(findPlaintext).WithArgs(key).WillReturnError(sql.ErrNoRows)

	_, err = f.resolver.Resolve(ctx, "", key)
	require.ErrorIs(t, err, common.ErrForbidden)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolve_ConcurrentUnknownKeyScansOnce(t *testing.T) {
	f := newFixture(t)
	f.mock.MatchExpectationsInOrder(false)
	key := "sk-layers-concurrent"
	fp := cryptox.LookupFingerprint(key)
	const callers = 5

	for i := 0; i < callers; i++ {
		f.mock.ExpectQuery(findByFingerprint).WithArgs(fp).WillReturnError(sql.ErrNoRows)
		f.mock.ExpectQuery(findPlaintext).WithArgs(key).WillReturnError(sql.ErrNoRows)
	}
	// only one scan is expected; a second one would fail with an
	// unexpected query and surface as ErrServiceUnavailable
	f.mock.ExpectQuery(listUnmigrated).WithArgs(100).
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows(keyColumns))

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.resolver.Resolve(context.Background(), "", key)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, common.ErrForbidden)
	}
	require.NoError(t, f.mock.ExpectationsWereMet())

	_, marked := f.resolver.caches.Migration.Get(fp)
	assert.True(t, marked)
}

func TestResolve_PlaintextFallback(t *testing.T) {
	accountCols := []string{"id", "credits", "is_active", "created_at"}

	tests := []struct {
		name    string
		active  bool
		wantErr error
	}{
		{"active account", true, nil},
		{"inactive account", false, common.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			key := "plain-legacy-key"

			f.mock.ExpectQuery(findByFingerprint).WillReturnError(sql.ErrNoRows)
			f.mock.ExpectQuery(listUnmigrated).WillReturnRows(sqlmock.NewRows(keyColumns))
			f.mock.ExpectQuery(findPlaintext).WithArgs(key).
				WillReturnRows(sqlmock.NewRows(accountCols).AddRow("acc-9", 10, tt.active, time.Now()))

			id, err := f.resolver.Resolve(context.Background(), "", key)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "acc-9", id)
		})
	}
}

func TestResolve_StoreFaultsAreServiceUnavailable(t *testing.T) {
	boom := errors.New("connection refused")

	tests := []struct {
		name  string
		setup func(m sqlmock.Sqlmock)
	}{
		{"fingerprint lookup", func(m sqlmock.Sqlmock) {
			m.ExpectQuery(findByFingerprint).WillReturnError(boom)
		}},
		{"legacy scan", func(m sqlmock.Sqlmock) {
			m.ExpectQuery(findByFingerprint).WillReturnError(sql.ErrNoRows)
			m.ExpectQuery(listUnmigrated).WillReturnError(boom)
		}},
		{"plaintext lookup", func(m sqlmock.Sqlmock) {
			m.ExpectQuery(findByFingerprint).WillReturnError(sql.ErrNoRows)
			m.ExpectQuery(listUnmigrated).WillReturnRows(sqlmock.NewRows(keyColumns))
			m.ExpectQuery(findPlaintext).WillReturnError(boom)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.mock)

			_, err := f.resolver.Resolve(context.Background(), "", "sk-layers-x")
			require.ErrorIs(t, err, common.ErrServiceUnavailable)
			assert.NotErrorIs(t, err, common.ErrForbidden)
		})
	}
}
