package news

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/newsdesk/internal/config"
	"github.com/memohai/newsdesk/internal/db"
)

func newMockService(t *testing.T, driver string) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewService(nil, &db.SQL{DB: conn, Driver: driver}), mock
}

func TestPostgresPlaceholders(t *testing.T) {
	svc, mock := newMockService(t, config.DriverPostgres)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM news_items WHERE id = $1")).
		WithArgs("abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, svc.Delete(context.Background(), "abc"))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO news_items (id,title,content,created_at) VALUES ($1,$2,$3,$4)")).
		WithArgs(sqlmock.AnyArg(), "Headline", "Body", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err := svc.Create(context.Background(), CreateRequest{Title: "Headline", Content: "Body"})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseFailuresAreWrapped(t *testing.T) {
	svc, mock := newMockService(t, config.DriverSQLite)
	down := errors.New("connection refused")

	mock.ExpectQuery("SELECT id, title, content, created_at FROM news_items").WillReturnError(down)
	_, err := svc.List(context.Background())
	assert.ErrorIs(t, err, down)

	mock.ExpectExec("DELETE FROM news_items").WillReturnError(down)
	err = svc.Delete(context.Background(), "abc")
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
