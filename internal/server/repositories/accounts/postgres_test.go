package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/claimgate/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var cols = []string{"id", "credits", "is_active", "created_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+accounts\s*\(credits\)\s*VALUES\s*\(\$1\)\s*RETURNING`).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("acc-1", int64(100), true, now))

	a, err := repo.Create(context.Background(), 100)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if a.ID != "acc-1" || a.Credits != 100 || !a.IsActive {
		t.Fatalf("unexpected account: %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*credits,\s*is_active,\s*created_at\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("acc-1", int64(7), false, time.Now()))

	a, err := repo.Get(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if a.Credits != 7 || a.IsActive {
		t.Fatalf("unexpected account: %+v", a)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+accounts`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestFindByLegacyKey_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE\s+api_key\s*=\s*\$1`).WithArgs("plain").WillReturnError(errors.New("conn reset"))

	_, err := repo.FindByLegacyKey(context.Background(), "plain")
	if err == nil || !regexp.MustCompile(`db error: .*conn reset`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
