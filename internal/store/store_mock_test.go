package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/db"
	"github.com/lherron/folio/internal/domain"
	"github.com/lherron/folio/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (*store.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return store.New(&db.DB{DB: sqlDB}), mock, func() { sqlDB.Close() }
}

func TestLocalBundle_QueryError(t *testing.T) {
	s, mock, done := setupMock(t)
	defer done()

	mock.ExpectQuery("SELECT .* FROM projects WHERE user_id").
		WithArgs(user).
		WillReturnError(errors.New("disk I/O error"))

	_, err := s.LocalBundle(context.Background(), user)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query projects")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBundle_RollsBackOnUpsertError(t *testing.T) {
	s, mock, done := setupMock(t)
	defer done()

	merged := bundle.Empty()
	merged.Projects = []domain.Project{{ID: "p1", UserID: user, Title: "Novel", CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM projects WHERE user_id").
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p-old"))
	mock.ExpectExec("DELETE FROM projects WHERE id").
		WithArgs("p-old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO projects").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err := s.ApplyBundle(context.Background(), user, merged)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert project p1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBundle_BeginError(t *testing.T) {
	s, mock, done := setupMock(t)
	defer done()

	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	_, err := s.ApplyBundle(context.Background(), user, bundle.Empty())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
}

func TestSoftDelete_RowsAffectedZero(t *testing.T) {
	s, mock, done := setupMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM memos WHERE id").
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "project_id", "title", "content", "tags", "created_at", "updated_at", "deleted_at"}).
			AddRow("m1", "other", "p1", "", "", "[]", "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z", nil))
	mock.ExpectExec("UPDATE memos SET deleted_at").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.SoftDelete(context.Background(), user, domain.EntityMemo, "m1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSyncState_ExecError(t *testing.T) {
	s, mock, done := setupMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO sync_state").
		WillReturnError(errors.New("readonly database"))

	err := s.SetSyncState(context.Background(), user, "sha256:x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write sync state")
}
