package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMock(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	orig := openDB
	openDB = func(string) (*sql.DB, error) { return conn, nil }
	t.Cleanup(func() { openDB = orig })
	return mock
}

func fastSettings() PoolSettings {
	s := DefaultPoolSettings()
	s.PingAttempts = 2
	s.PingBackoff = time.Millisecond
	return s
}

func TestOpen_RetriesPing(t *testing.T) {
	mock := withMock(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	db, err := Open(context.Background(), "postgres://x", fastSettings())
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_GivesUp(t *testing.T) {
	mock := withMock(t)
	for i := 0; i < 3; i++ {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	}
	mock.ExpectClose()

	db, err := Open(context.Background(), "postgres://x", fastSettings())
	assert.Nil(t, db)
	assert.ErrorContains(t, err, "db ping error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_OpenError(t *testing.T) {
	orig := openDB
	openDB = func(string) (*sql.DB, error) { return nil, errors.New("bad dsn") }
	t.Cleanup(func() { openDB = orig })

	_, err := Open(context.Background(), "::", fastSettings())
	assert.ErrorContains(t, err, "db open error")
}
