package kv

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// a :memory: database lives per connection
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE local_records (
  key        TEXT PRIMARY KEY,
  value      BLOB NOT NULL,
  updated_at INTEGER NOT NULL DEFAULT 0
);`)
	require.NoError(t, err)
	return db
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"sqlite": NewSQLiteRepository(setupDB(t)),
		"memory": NewMemoryRepository(),
	}
}

func TestRepository_SetGetOverwrite(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, r.Set(ctx, "k", []byte("old")))
			require.NoError(t, r.Set(ctx, "k", []byte("new"))) // upsert

			v, err := r.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("new"), v)
		})
	}
}

func TestRepository_GetAbsentReturnsNilNil(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			v, err := r.Get(context.Background(), "absent")
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestRepository_DeleteIsIdempotent(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, r.Set(ctx, "x", []byte{0x01}))
			require.NoError(t, r.Delete(ctx, "x"))
			require.NoError(t, r.Delete(ctx, "x"))

			v, err := r.Get(ctx, "x")
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestRepository_KeysByPrefix(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, r.Set(ctx, "draft-backup:b", []byte{1}))
			require.NoError(t, r.Set(ctx, "draft-backup:a", []byte{2}))
			require.NoError(t, r.Set(ctx, "draft-backupXc", []byte{3}))
			require.NoError(t, r.Set(ctx, "settings:theme", []byte{4}))

			keys, err := r.Keys(ctx, "draft-backup:")
			require.NoError(t, err)
			assert.Equal(t, []string{"draft-backup:a", "draft-backup:b"}, keys)
		})
	}
}

func TestSQLiteRepository_PrefixIsNotAWildcard(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a_b", []byte{1}))
	require.NoError(t, r.Set(ctx, "axb", []byte{1}))

	keys, err := r.Keys(ctx, "a_")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b"}, keys)
}

func TestMemoryRepository_CopiesValues(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, r.Set(ctx, "k", buf))
	buf[0] = 'z'

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)
}

func TestSQLiteRepository_ErrorsAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("disk I/O error")
	mock.ExpectExec("INSERT INTO local_records").WillReturnError(boom)
	mock.ExpectQuery("SELECT value FROM local_records").WillReturnError(boom)
	mock.ExpectExec("DELETE FROM local_records").WillReturnError(boom)
	mock.ExpectQuery("SELECT key FROM local_records").WillReturnError(boom)

	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.ErrorIs(t, r.Set(ctx, "k", []byte{1}), boom)
	_, err = r.Get(ctx, "k")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, r.Delete(ctx, "k"), boom)
	_, err = r.Keys(ctx, "p")
	require.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRepository_BoundToTx(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	r := NewSQLiteRepository(tx)
	require.NoError(t, r.Set(ctx, "draft-backup:a", []byte("x")))
	require.NoError(t, tx.Rollback())

	// откат не оставляет записи
	v, err := NewSQLiteRepository(db).Get(ctx, "draft-backup:a")
	require.NoError(t, err)
	assert.Nil(t, v)
}
