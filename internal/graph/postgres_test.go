package graph

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hexfury/graphport/api/schemas"
)

// flexibleSQLMatcher compares statements with whitespace collapsed, so
// multi-line SQL in the store matches single-line expectations.
var flexibleSQLMatcher = pgxmock.QueryMatcherFunc(func(expectedSQL, actualSQL string) error {
	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	if normalize(expectedSQL) != normalize(actualSQL) {
		return fmt.Errorf("sql mismatch: expected %q, actual %q", expectedSQL, actualSQL)
	}
	return nil
})

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(flexibleSQLMatcher))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPostgresStoreWithPool(mock, zap.NewNop())
	require.NoError(t, err)
	return store, mock
}

func TestPostgresCreateEntities(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO graph_nodes DEFAULT VALUES RETURNING id`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO graph_nodes DEFAULT VALUES RETURNING id`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectQuery(`INSERT INTO graph_relationships (start_id, end_id, rel_type) VALUES ($1, $2, $3) RETURNING id`).
		WithArgs(int64(1), int64(2), "KNOWS").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	a, err := tx.CreateNode(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a)

	b, err := tx.CreateNode(ctx)
	require.NoError(t, err)

	rel, err := tx.CreateRelationship(ctx, a, b, "KNOWS")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rel)

	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetProperty(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE graph_nodes SET properties = properties || $2::jsonb WHERE id = $1`).
		WithArgs(int64(1), []byte(`{"name":"Ada"}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE graph_relationships SET properties = properties || $2::jsonb WHERE id = $1`).
		WithArgs(int64(2), []byte(`{"since":1952}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.SetProperty(ctx, schemas.KindNode, 1, "name", "Ada"))
	require.NoError(t, tx.SetProperty(ctx, schemas.KindRelationship, 2, "since", 1952))

	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetPropertyUnknownEntity(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE graph_nodes SET properties = properties || $2::jsonb WHERE id = $1`).
		WithArgs(int64(9), []byte(`{"k":"v"}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	err = tx.SetProperty(ctx, schemas.KindNode, 9, "k", "v")
	assert.ErrorContains(t, err, "unknown node 9")
	require.NoError(t, tx.Rollback(ctx))
}

func TestPostgresAddLabel(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	const labelSQL = `UPDATE graph_nodes SET labels = CASE WHEN $2 = ANY (labels) THEN labels ELSE array_append(labels, $2) END WHERE id = $1`

	mock.ExpectBegin()
	mock.ExpectExec(labelSQL).
		WithArgs(int64(1), "Person").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(labelSQL).
		WithArgs(int64(7), "Ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	assert.NoError(t, tx.AddLabel(ctx, 1, "Person"))
	assert.ErrorContains(t, tx.AddLabel(ctx, 7, "Ghost"), "unknown node 7")

	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClosedTransactionSentinel(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(pgx.ErrTxClosed)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, tx.Commit(ctx), schemas.ErrTxClosed)
}

func TestPostgresSnapshot(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	// Nodes and relationships load concurrently.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(`SELECT id, labels, properties FROM graph_nodes ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "labels", "properties"}).
			AddRow(int64(1), []string{"Person"}, []byte(`{"age":36}`)).
			AddRow(int64(2), []string{}, []byte(`{}`)))
	mock.ExpectQuery(`SELECT id, start_id, end_id, rel_type, properties FROM graph_relationships ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "start_id", "end_id", "rel_type", "properties"}).
			AddRow(int64(1), int64(1), int64(2), "KNOWS", []byte(`{"w":0.5}`)))

	snapshot, err := store.Snapshot(ctx)
	require.NoError(t, err)

	require.Len(t, snapshot.Nodes, 2)
	assert.Equal(t, []string{"Person"}, snapshot.Nodes[0].Labels)
	assert.Equal(t, float64(36), snapshot.Nodes[0].Props["age"], "jsonb numbers decode as float64")
	assert.Nil(t, snapshot.Nodes[1].Labels)
	assert.Nil(t, snapshot.Nodes[1].Props)

	require.Len(t, snapshot.Relationships, 1)
	assert.Equal(t, "KNOWS", snapshot.Relationships[0].Type)
	assert.Equal(t, 0.5, snapshot.Relationships[0].Props["w"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStoreRejectsBadURL(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), "://not-a-url", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse connection string")
}
