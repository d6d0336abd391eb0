// Package auth resolves the caller of every request to an account id. It
// accepts either a bearer token, validated by an identity service, or an
// API key verified against its stored bcrypt hash.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/cryptox"
	"github.com/dmitrijs2005/claimgate/internal/dbx"
	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/repomanager"
	"golang.org/x/sync/singleflight"
)

// DefaultLegacyScanLimit bounds how many unfingerprinted keys one lookup may
// bcrypt-check.
const DefaultLegacyScanLimit = 100

// IdentityService validates bearer tokens. Implementations return an error
// wrapping common.ErrServiceUnavailable when they cannot reach their backend;
// any other error means the token was rejected.
type IdentityService interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// Caches groups the in-process caches the resolver reads and fills. They
// are created once at startup and live for the process lifetime.
type Caches struct {
	// Bearer maps raw tokens to account ids.
	Bearer *TTLCache
	// Keys maps key fingerprints to account ids.
	Keys *TTLCache
	// Migration marks fingerprints whose legacy scan recently found nothing.
	Migration *TTLCache
}

type Resolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	identity    IdentityService
	caches      Caches
	scanLimit   int
	logger      logging.Logger

	// scans collapses concurrent legacy scans for the same fingerprint.
	scans singleflight.Group
}

func NewResolver(db *sql.DB, m repomanager.RepositoryManager, identity IdentityService, caches Caches, scanLimit int, logger logging.Logger) *Resolver {
	if scanLimit <= 0 {
		scanLimit = DefaultLegacyScanLimit
	}
	return &Resolver{
		db:          db,
		repomanager: m,
		identity:    identity,
		caches:      caches,
		scanLimit:   scanLimit,
		logger:      logger.With("module", "auth"),
	}
}

// Resolve returns the account behind the supplied credential. A bearer
// token takes precedence over an API key.
//
// Errors: common.ErrUnauthenticated when neither credential is present,
// common.ErrForbidden when the credential is invalid or inactive and
// common.ErrServiceUnavailable when the backing store fails.
func (r *Resolver) Resolve(ctx context.Context, bearer, apiKey string) (string, error) {
	switch {
	case bearer != "":
		return r.resolveBearer(ctx, bearer)
	case apiKey != "":
		return r.resolveAPIKey(ctx, apiKey)
	default:
		return "", common.ErrUnauthenticated
	}
}

func (r *Resolver) resolveBearer(ctx context.Context, token string) (string, error) {
	if id, ok := r.caches.Bearer.Get(token); ok {
		return id, nil
	}

	id, err := r.identity.ValidateToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrServiceUnavailable) {
			r.logger.Error(ctx, "identity service failed", "error", err)
			return "", err
		}
		r.logger.Debug(ctx, "bearer rejected", "error", err)
		return "", common.ErrForbidden
	}

	r.caches.Bearer.Set(token, id)
	return id, nil
}

func (r *Resolver) resolveAPIKey(ctx context.Context, apiKey string) (string, error) {
	fp := cryptox.LookupFingerprint(apiKey)
	if id, ok := r.caches.Keys.Get(fp); ok {
		return id, nil
	}

	repo := r.repomanager.APIKeys(r.db)

	key, err := repo.FindByLookupHash(ctx, fp)
	switch {
	case err == nil:
		if cryptox.VerifySecret(key.KeyHash, apiKey) {
			return r.accept(ctx, fp, key)
		}
	case errors.Is(err, common.ErrNotFound):
	default:
		return "", r.unavailable(ctx, "fingerprint lookup", err)
	}

	key, err = r.scanLegacy(ctx, fp, apiKey)
	if err != nil {
		return "", err
	}
	if key != nil {
		return r.accept(ctx, fp, key)
	}

	acc, err := r.repomanager.Accounts(r.db).FindByLegacyKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrForbidden
		}
		return "", r.unavailable(ctx, "plaintext lookup", err)
	}
	if !acc.IsActive {
		return "", common.ErrForbidden
	}
	r.caches.Keys.Set(fp, acc.ID)
	return acc.ID, nil
}

// accept caches an active key and records its use. Inactive keys are
// rejected and never cached.
func (r *Resolver) accept(ctx context.Context, fp string, key *models.APIKey) (string, error) {
	if !key.IsActive {
		return "", common.ErrForbidden
	}
	if err := r.repomanager.APIKeys(r.db).TouchLastUsed(ctx, key.ID); err != nil {
		r.logger.Warn(ctx, "touch last_used failed", "key", key.ID, "error", err)
	}
	r.caches.Keys.Set(fp, key.AccountID)
	return key.AccountID, nil
}

// scanLegacy bcrypt-checks keys stored before fingerprints existed. The
// first match gets its fingerprint backfilled so later calls take the
// indexed path. A miss is remembered per fingerprint so repeated requests with
// a bad key cannot trigger a scan more than once per marker TTL.
//
// Concurrent callers with the same key share one scan. The marker is
// checked inside the shared call, so a caller arriving just after a miss
// sees it.
func (r *Resolver) scanLegacy(ctx context.Context, fp, apiKey string) (*models.APIKey, error) {
	v, err, _ := r.scans.Do(fp, func() (any, error) {
		if _, ok := r.caches.Migration.Get(fp); ok {
			return (*models.APIKey)(nil), nil
		}
		return r.scan(dbx.Detached(ctx), fp, apiKey)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.APIKey), nil
}

func (r *Resolver) scan(ctx context.Context, fp, apiKey string) (*models.APIKey, error) {
	repo := r.repomanager.APIKeys(r.db)
	candidates, err := repo.ListUnmigrated(ctx, r.scanLimit)
	if err != nil {
		return nil, r.unavailable(ctx, "legacy scan", err)
	}

	for _, k := range candidates {
		if !cryptox.VerifySecret(k.KeyHash, apiKey) {
			continue
		}
		if err := repo.SetLookupHash(ctx, k.ID, fp); err != nil {
			return nil, r.unavailable(ctx, "fingerprint backfill", err)
		}
		k.LookupHash = fp
		r.logger.Info(ctx, "migrated legacy api key", "account", common.ShortID(k.AccountID))
		return k, nil
	}

	r.caches.Migration.Set(fp, "")
	return nil, nil
}

func (r *Resolver) unavailable(ctx context.Context, stage string, err error) error {
	r.logger.Error(ctx, "auth store fault", "stage", stage, "error", err)
	return fmt.Errorf("%w: %s: %v", common.ErrServiceUnavailable, stage, err)
}
