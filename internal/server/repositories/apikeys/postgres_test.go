package apikeys

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var keyCols = []string{"id", "account_id", "name", "key_hash", "lookup_hash", "key_prefix", "is_active", "created_at", "last_used_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+api_keys\s*\(account_id,\s*name,\s*key_hash,\s*lookup_hash,\s*key_prefix\)`).
		WithArgs("acc-1", "ci", "$2a$hash", "fp", "sk-layers-abc...").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("key-1", now))

	k, err := repo.Create(context.Background(), &models.APIKey{
		AccountID: "acc-1", Name: "ci", KeyHash: "$2a$hash", LookupHash: "fp", KeyPrefix: "sk-layers-abc...",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if k.ID != "key-1" || !k.IsActive {
		t.Fatalf("unexpected key: %+v", k)
	}
}

func TestFindByLookupHash_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+api_keys\s+WHERE\s+lookup_hash\s*=\s*\$1`).
		WithArgs("fp").
		WillReturnRows(sqlmock.NewRows(keyCols).AddRow("key-1", "acc-1", "ci", "$2a$hash", "fp", "sk-...", true, time.Now(), nil))

	k, err := repo.FindByLookupHash(context.Background(), "fp")
	if err != nil {
		t.Fatalf("FindByLookupHash error: %v", err)
	}
	if k.AccountID != "acc-1" || k.LookupHash != "fp" || k.LastUsedAt != nil {
		t.Fatalf("unexpected key: %+v", k)
	}
}

func TestFindByLookupHash_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE\s+lookup_hash\s*=\s*\$1`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	if _, err := repo.FindByLookupHash(context.Background(), "nope"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListUnmigrated_NullLookupHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	used := time.Now()
	mock.ExpectQuery(`WHERE\s+lookup_hash\s+IS\s+NULL\s+ORDER\s+BY\s+created_at\s+LIMIT\s+\$1`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(keyCols).
			AddRow("k1", "a1", "", "h1", nil, "", true, time.Now(), nil).
			AddRow("k2", "a2", "", "h2", nil, "", false, time.Now(), used))

	keys, err := repo.ListUnmigrated(context.Background(), 100)
	if err != nil {
		t.Fatalf("ListUnmigrated error: %v", err)
	}
	if len(keys) != 2 || keys[0].LookupHash != "" || keys[1].IsActive || keys[1].LastUsedAt == nil {
		t.Fatalf("unexpected keys: %+v %+v", keys[0], keys[1])
	}
}

func TestSetLookupHash_OnlyWhenNull(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+api_keys\s+SET\s+lookup_hash\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+lookup_hash\s+IS\s+NULL`).
		WithArgs("k1", "fp").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetLookupHash(context.Background(), "k1", "fp"); err != nil {
		t.Fatalf("SetLookupHash error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeactivate_NotOwned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+api_keys\s+SET\s+is_active\s*=\s*FALSE`).
		WithArgs("k1", "someone-else").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Deactivate(context.Background(), "k1", "someone-else"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeactivate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+api_keys\s+SET\s+is_active\s*=\s*FALSE`).
		WithArgs("k1", "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Deactivate(context.Background(), "k1", "acc-1"); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}
}
