package pipeline

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotalabs/buspulse/internal/model"
	"github.com/rotalabs/buspulse/internal/state"
	"github.com/rotalabs/buspulse/internal/testutil"
	"github.com/rotalabs/buspulse/pkg/adapter"
	"github.com/rotalabs/buspulse/pkg/adapters/duckdb"
)

func openDuckDB(t *testing.T) adapter.Adapter {
	t.Helper()
	db := duckdb.New(testutil.NewTestLogger(t))
	require.NoError(t, db.Connect(context.Background(), adapter.Config{Type: "duckdb", Path: ":memory:"}))
	t.Cleanup(func() { db.Close() })
	return db
}

var sourceDDL = `CREATE TABLE transactions (
	customer_id VARCHAR,
	gmv DOUBLE,
	tickets DOUBLE,
	purchase_ts TIMESTAMP,
	return_origin VARCHAR,
	origin_city VARCHAR,
	origin_state VARCHAR,
	dest_city VARCHAR,
	dest_state VARCHAR,
	carrier VARCHAR
)`

// seedSource loads two clearly separated customer groups: frequent evening
// commuters on Sao Paulo-Rio and occasional morning travelers on
// Campinas-Santos. One commuter purchase goes to the minor carrier Beta.
func seedSource(t *testing.T, db adapter.Adapter) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, sourceDDL))

	var rows [][]any
	day := time.Date(2024, 5, 6, 18, 30, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("commuter-%d", i)
		carrier := "Alfa"
		if i == 0 {
			carrier = "Beta"
		}
		rows = append(rows,
			[]any{id, 500.0, 5.0, day, "Rio de Janeiro", "Sao Paulo", "SP", "Rio de Janeiro", "RJ", carrier},
			[]any{id, 480.0, 5.0, day.Add(24 * time.Hour), "", "Sao Paulo", "SP", "Rio de Janeiro", "RJ", "Alfa"},
		)
	}
	morning := time.Date(2024, 5, 8, 7, 10, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("occasional-%d", i)
		rows = append(rows,
			[]any{id, 30.0, 1.0, morning, "", "Campinas", "SP", "Santos", "SP", "Gama"},
			[]any{id, 35.0, 1.0, morning.Add(48 * time.Hour), "", "Campinas", "SP", "Santos", "SP", "Gama"},
		)
	}

	cols := []string{"customer_id", "gmv", "tickets", "purchase_ts", "return_origin",
		"origin_city", "origin_state", "dest_city", "dest_state", "carrier"}
	require.NoError(t, db.InsertRows(ctx, "transactions", cols, rows))
}

func queryInt(t *testing.T, db adapter.Adapter, query string) int {
	t.Helper()
	rows, err := db.Query(context.Background(), query)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	return n
}

func testConfig(t *testing.T) Config {
	return Config{
		Clusters:   2,
		ChunkSize:  4,
		SmallShare: 0.15,
		Logger:     testutil.NewTestLogger(t),
	}
}

func TestPipeline_Run(t *testing.T) {
	db := openDuckDB(t)
	seedSource(t, db)

	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { store.Close() })

	p := New(db, store, testConfig(t))
	runID, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusCompleted, run.Status)
	require.Len(t, run.Stages, 4)
	byName := map[string]state.StageRecord{}
	for _, s := range run.Stages {
		byName[s.Stage] = s
	}
	assert.Equal(t, int64(16), byName["propagate"].RowsWritten)
	assert.Equal(t, int64(2), byName["profile"].RowsWritten)

	// Every source row lands enriched with a cluster label.
	assert.Equal(t, 16, queryInt(t, db, "SELECT COUNT(*) FROM enriched_transactions"))
	assert.Equal(t, 16, queryInt(t, db, "SELECT COUNT(cluster) FROM enriched_transactions"))
	assert.Equal(t, 2, queryInt(t, db, "SELECT COUNT(DISTINCT cluster) FROM enriched_transactions"))

	// The two behavioral groups never share a cluster.
	assert.Equal(t, 1, queryInt(t, db,
		"SELECT COUNT(DISTINCT cluster) FROM enriched_transactions WHERE customer_id LIKE 'commuter%'"))
	assert.Equal(t, 1, queryInt(t, db,
		"SELECT COUNT(DISTINCT cluster) FROM enriched_transactions WHERE customer_id LIKE 'occasional%'"))

	assert.Equal(t, 2, queryInt(t, db, "SELECT COUNT(*) FROM cluster_profiles"))

	// One dominant purchase hour per group.
	assert.Equal(t, 2, queryInt(t, db, "SELECT COUNT(*) FROM peak_hours WHERE hour_rank = 1"))

	// Beta holds 5 of 40 tickets on Sao Paulo-Rio, under the 0.15
	// threshold, so it surfaces as an opportunity.
	assert.GreaterOrEqual(t, queryInt(t, db,
		"SELECT COUNT(*) FROM recommendations WHERE carrier = 'Beta'"), 1)
}

func TestPipeline_PropagateRequiresTraining(t *testing.T) {
	db := openDuckDB(t)
	seedSource(t, db)

	p := New(db, nil, testConfig(t))
	_, err := p.Propagate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not trained")
}

func TestPipeline_TrainThenPropagate(t *testing.T) {
	db := openDuckDB(t)
	seedSource(t, db)

	p := New(db, nil, testConfig(t))
	ctx := context.Background()

	fitted, err := p.Train(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fitted.Clusters)
	assert.Same(t, fitted, p.Model())

	rows, err := p.Propagate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(16), rows)

	// Derived fields come out of the propagation, not the source.
	assert.Equal(t, 8, queryInt(t, db,
		"SELECT COUNT(*) FROM enriched_transactions WHERE purchase_hour = 18"))
	assert.Equal(t, 4, queryInt(t, db,
		"SELECT COUNT(*) FROM enriched_transactions WHERE has_return = 1"))
	assert.Equal(t, 16, queryInt(t, db,
		"SELECT COUNT(*) FROM enriched_transactions WHERE algorithm = 'minibatch-kmeans' AND cluster_count = 2"))
}

func TestPipeline_PropagateIsRepeatable(t *testing.T) {
	db := openDuckDB(t)
	seedSource(t, db)

	p := New(db, nil, testConfig(t))
	ctx := context.Background()

	_, err := p.Train(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rows, err := p.Propagate(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(16), rows)
	}
	// Replace semantics: the second run does not append.
	assert.Equal(t, 16, queryInt(t, db, "SELECT COUNT(*) FROM enriched_transactions"))
}

func TestPipeline_ProfileRequiresEnrichedTable(t *testing.T) {
	db := openDuckDB(t)
	seedSource(t, db)

	p := New(db, nil, testConfig(t))
	_, err := p.Profile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enriched_transactions")
}

func TestPipeline_ProfileRejectsMissingColumns(t *testing.T) {
	db := openDuckDB(t)
	require.NoError(t, db.Exec(context.Background(),
		"CREATE TABLE enriched_transactions (customer_id VARCHAR, gmv DOUBLE)"))

	p := New(db, nil, testConfig(t))
	_, err := p.Profile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
	assert.Contains(t, err.Error(), "cluster")
}

func TestPipeline_PeaksOutputs(t *testing.T) {
	db := openDuckDB(t)
	seedSource(t, db)

	p := New(db, nil, testConfig(t))
	ctx := context.Background()

	_, err := p.Train(ctx)
	require.NoError(t, err)
	_, err = p.Propagate(ctx)
	require.NoError(t, err)

	res, err := p.Peaks(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(res.Peaks), queryInt(t, db, "SELECT COUNT(*) FROM peak_hours"))
	assert.Equal(t, len(res.Opportunities), queryInt(t, db, "SELECT COUNT(*) FROM recommendations"))

	// Both outputs of one pass share a processing timestamp.
	assert.Equal(t, 1, queryInt(t, db,
		`SELECT COUNT(DISTINCT processed_at) FROM (
			SELECT processed_at FROM peak_hours
			UNION ALL SELECT processed_at FROM recommendations
		) stamps`))
}

func TestChunkWalkVisitsDuplicateKeysOnce(t *testing.T) {
	db := openDuckDB(t)
	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, sourceDDL))

	// Six rows sharing one (customer, timestamp) pair: the walk's sort key
	// must still order them totally across chunk boundaries.
	ts := time.Date(2024, 5, 6, 18, 30, 0, 0, time.UTC)
	var rows [][]any
	for i := 0; i < 6; i++ {
		rows = append(rows, []any{
			"commuter-0", 100.0, 2.0, ts, "",
			"Sao Paulo", "SP", "Rio de Janeiro", "RJ", fmt.Sprintf("carrier-%d", i),
		})
	}
	cols := []string{"customer_id", "gmv", "tickets", "purchase_ts", "return_origin",
		"origin_city", "origin_state", "dest_city", "dest_state", "carrier"}
	require.NoError(t, db.InsertRows(ctx, "transactions", cols, rows))

	cfg := testConfig(t)
	cfg.ChunkSize = 2
	p := New(db, nil, cfg)

	seen := make(map[string]int)
	total := 0
	err := p.forEachTransactionChunk(ctx, func(txs []model.Transaction) error {
		for _, tx := range txs {
			seen[tx.Carrier]++
			total++
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 6, total)
	for i := 0; i < 6; i++ {
		assert.Equal(t, 1, seen[fmt.Sprintf("carrier-%d", i)])
	}
}

func TestPipeline_LoadCSV(t *testing.T) {
	db := openDuckDB(t)

	dir := t.TempDir()
	path := dir + "/transactions.csv"
	csv := "customer_id,gmv,tickets,purchase_ts,return_origin,origin_city,origin_state,dest_city,dest_state,carrier\n" +
		"c1,100.0,2,2024-05-06 18:30:00,,Sao Paulo,SP,Rio de Janeiro,RJ,Alfa\n" +
		"c2,40.0,1,2024-05-07 07:00:00,Santos,Campinas,SP,Santos,SP,Gama\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	p := New(db, nil, testConfig(t))
	require.NoError(t, p.LoadCSV(context.Background(), path))
	assert.Equal(t, 2, queryInt(t, db, "SELECT COUNT(*) FROM transactions"))

	// Loaded rows feed straight into feature building.
	fitted, err := p.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fitted.Clusters)
}

func TestCoercion(t *testing.T) {
	assert.Equal(t, 12.5, asFloat("12.5"))
	assert.Equal(t, 12.5, asFloat([]byte(" 12.5 ")))
	assert.Equal(t, 3.0, asFloat(int32(3)))
	assert.Zero(t, asFloat("abc"))
	assert.Zero(t, asFloat(nil))

	assert.Equal(t, "x", asString([]byte("x")))
	assert.Empty(t, asString(nil))

	require.NotNil(t, asNullableInt(int64(4)))
	assert.Equal(t, 4, *asNullableInt(int64(4)))
	assert.Nil(t, asNullableInt(nil))
	assert.Nil(t, asNullableInt(""))

	ts := asTime("2024-05-06 18:30:00")
	assert.Equal(t, 18, ts.Hour())
	assert.True(t, asTime("garbage").IsZero())
}
