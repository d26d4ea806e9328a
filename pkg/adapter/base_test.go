package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseSQLAdapter_NotConnected(t *testing.T) {
	b := &BaseSQLAdapter{}
	ctx := context.Background()

	assert.Error(t, b.Exec(ctx, "SELECT 1"))

	_, err := b.Query(ctx, "SELECT 1")
	assert.Error(t, err)

	err = b.InsertRows(ctx, "t", []string{"a"}, [][]any{{1}})
	assert.Error(t, err)
}

func TestBaseSQLAdapter_InsertRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	b := &BaseSQLAdapter{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO peaks \(cluster, hour\) VALUES \(\?, \?\), \(\?, \?\)`).
		WithArgs(0, 18, 1, 9).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err = b.InsertRows(context.Background(), "peaks", []string{"cluster", "hour"}, [][]any{
		{0, 18},
		{1, 9},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_InsertRows_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	b := &BaseSQLAdapter{DB: db}

	// No rows means no statements at all.
	require.NoError(t, b.InsertRows(context.Background(), "peaks", []string{"cluster"}, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_InsertRows_ColumnMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	b := &BaseSQLAdapter{DB: db}

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = b.InsertRows(context.Background(), "peaks", []string{"cluster", "hour"}, [][]any{{1}})
	assert.Error(t, err)
}

func TestBaseSQLAdapter_InsertRows_Batching(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	b := &BaseSQLAdapter{DB: db}

	rows := make([][]any, insertBatchRows+1)
	for i := range rows {
		rows[i] = []any{i}
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO t \(v\) VALUES`).WillReturnResult(sqlmock.NewResult(0, int64(insertBatchRows)))
	mock.ExpectExec(`INSERT INTO t \(v\) VALUES`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, b.InsertRows(context.Background(), "t", []string{"v"}, rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_Placeholder(t *testing.T) {
	b := &BaseSQLAdapter{}
	assert.Equal(t, "?", b.Placeholder(1))
	assert.Equal(t, "?", b.Placeholder(7))

	b.PlaceholderFunc = func(n int) string { return "$" + string(rune('0'+n)) }
	assert.Equal(t, "$3", b.Placeholder(3))
}

func TestParseQualifiedName(t *testing.T) {
	tests := []struct {
		name       string
		table      string
		wantSchema string
		wantName   string
	}{
		{name: "qualified", table: "analytics.enriched", wantSchema: "analytics", wantName: "enriched"},
		{name: "unqualified", table: "enriched", wantSchema: "main", wantName: "enriched"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, name := ParseQualifiedName(tt.table, "main")
			assert.Equal(t, tt.wantSchema, schema)
			assert.Equal(t, tt.wantName, name)
		})
	}
}
