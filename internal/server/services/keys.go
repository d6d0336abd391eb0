package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/cryptox"
	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/repomanager"
)

const maxKeyNameLen = 100

// KeyCache is the resolver's positive key cache, keyed by fingerprint.
type KeyCache interface {
	Delete(key string)
}

// IssuedKey carries the raw key. It is returned once, on issuance.
type IssuedKey struct {
	ID        string
	Name      string
	Key       string
	Prefix    string
	CreatedAt time.Time
}

type KeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       KeyCache
	hashCost    int
	logger      logging.Logger
}

func NewKeyService(db *sql.DB, m repomanager.RepositoryManager, cache KeyCache, hashCost int, logger logging.Logger) *KeyService {
	return &KeyService{
		db:          db,
		repomanager: m,
		cache:       cache,
		hashCost:    hashCost,
		logger:      logger.With("module", "keys"),
	}
}

// Issue creates a new API key for accountID. Only its bcrypt hash, its
// fingerprint and a display prefix are stored.
func (s *KeyService) Issue(ctx context.Context, accountID, name string) (*IssuedKey, error) {
	name = strings.TrimSpace(name)
	if len(name) > maxKeyNameLen {
		return nil, fmt.Errorf("%w: key name longer than %d characters", common.ErrValidation, maxKeyNameLen)
	}

	if _, err := s.repomanager.Accounts(s.db).Get(ctx, accountID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrAccountNotFound
		}
		return nil, s.fault(ctx, "account lookup", err)
	}

	raw, err := cryptox.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	hash, err := cryptox.HashSecret(raw, s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	key, err := s.repomanager.APIKeys(s.db).Create(ctx, &models.APIKey{
		AccountID:  accountID,
		Name:       name,
		KeyHash:    hash,
		LookupHash: cryptox.LookupFingerprint(raw),
		KeyPrefix:  cryptox.DisplayPrefix(raw),
	})
	if err != nil {
		return nil, s.fault(ctx, "create key", err)
	}

	s.logger.Info(ctx, "api key issued", "account", common.ShortID(accountID), "key", key.ID)
	return &IssuedKey{ID: key.ID, Name: key.Name, Key: raw, Prefix: key.KeyPrefix, CreatedAt: key.CreatedAt}, nil
}

// List returns the caller's keys without any secret material.
func (s *KeyService) List(ctx context.Context, accountID string) ([]*models.APIKey, error) {
	keys, err := s.repomanager.APIKeys(s.db).ListByAccount(ctx, accountID)
	if err != nil {
		return nil, s.fault(ctx, "list keys", err)
	}
	for _, k := range keys {
		k.KeyHash = ""
		k.LookupHash = ""
	}
	return keys, nil
}

// Revoke deactivates one of the caller's keys and drops it from the
// resolver cache. Keys owned by other accounts are reported as not found.
func (s *KeyService) Revoke(ctx context.Context, accountID, keyID string) error {
	repo := s.repomanager.APIKeys(s.db)

	keys, err := repo.ListByAccount(ctx, accountID)
	if err != nil {
		return s.fault(ctx, "list keys", err)
	}

	var fingerprint string
	found := false
	for _, k := range keys {
		if k.ID == keyID {
			fingerprint, found = k.LookupHash, true
			break
		}
	}
	if !found {
		return common.ErrNotFound
	}

	if err := repo.Deactivate(ctx, keyID, accountID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return err
		}
		return s.fault(ctx, "deactivate key", err)
	}

	if s.cache != nil && fingerprint != "" {
		s.cache.Delete(fingerprint)
	}

	s.logger.Info(ctx, "api key revoked", "account", common.ShortID(accountID), "key", keyID)
	return nil
}

func (s *KeyService) fault(ctx context.Context, stage string, err error) error {
	s.logger.Error(ctx, "key store fault", "stage", stage, "error", err)
	return fmt.Errorf("%w: %s: %v", common.ErrServiceUnavailable, stage, err)
}
