package backtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/etf-backtester/internal/database"
	"github.com/aristath/etf-backtester/internal/domain"
	testutil "github.com/aristath/etf-backtester/internal/testing"
)

// openTestDB returns a migrated connection. Both SQLite drivers are exercised
// so the schema stays portable.
func openTestDB(t *testing.T, driver string) *sql.DB {
	t.Helper()
	switch driver {
	case "modernc":
		return testutil.NewTestDB(t, "backtests").Conn()
	case "mattn":
		conn, err := sql.Open("sqlite3", ":memory:")
		require.NoError(t, err)
		conn.SetMaxOpenConns(1)
		require.NoError(t, database.ApplySchema(conn, "backtests"))
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}
	t.Fatalf("unknown driver %s", driver)
	return nil
}

var drivers = []string{"modernc", "mattn"}

func storedRun(t *testing.T) (*Orchestrator, []byte) {
	t.Helper()
	o, err := Start("backtest_1", profitParams(), profitBars(t), testLogger())
	require.NoError(t, err)
	snapshot, err := EncodeSnapshot(o.Snapshot())
	require.NoError(t, err)
	return o, snapshot
}

func TestRepository_CreateAndLoad(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			repo := NewRepository(openTestDB(t, driver), testLogger())
			repo.now = func() time.Time { return time.Unix(1700000000, 0) }

			o, snapshot := storedRun(t)
			rec := Record{ID: o.ID(), Status: StatusRunning, Params: o.Params(), DataSource: "sample", CurrentDate: "2024-01-01", Equity: 1000000}
			require.NoError(t, repo.Create(ctx, rec, snapshot, o.Bars()))

			got, err := repo.Get(ctx, o.ID())
			require.NoError(t, err)
			assert.Equal(t, StatusRunning, got.Status)
			assert.Equal(t, "sample", got.DataSource)
			assert.Equal(t, o.Params(), got.Params)
			assert.Equal(t, time.Unix(1700000000, 0).UTC(), got.CreatedAt)

			bars, err := repo.LoadBars(ctx, o.ID())
			require.NoError(t, err)
			assert.Equal(t, o.Bars(), bars)

			data, err := repo.LoadSnapshot(ctx, o.ID())
			require.NoError(t, err)
			assert.Equal(t, snapshot, data)
		})
	}
}

func TestRepository_SaveSnapshotAndMarkError(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			repo := NewRepository(openTestDB(t, driver), testLogger())

			o, snapshot := storedRun(t)
			require.NoError(t, repo.Create(ctx, Record{ID: o.ID(), Status: StatusRunning, Params: o.Params()}, snapshot, o.Bars()))

			_, err := o.Step(2)
			require.NoError(t, err)
			next, err := EncodeSnapshot(o.Snapshot())
			require.NoError(t, err)
			require.NoError(t, repo.SaveSnapshot(ctx, next, o.Status()))

			require.NoError(t, repo.MarkError(ctx, o.ID(), "boom"))
			got, err := repo.Get(ctx, o.ID())
			require.NoError(t, err)
			assert.Equal(t, StatusError, got.Status)
			assert.Equal(t, "boom", got.Error)
			assert.Equal(t, 3, got.TotalTrades)
			assert.Equal(t, "2024-01-03", got.CurrentDate)

			data, err := repo.LoadSnapshot(ctx, o.ID())
			require.NoError(t, err)
			assert.Equal(t, next, data, "marking an error keeps the committed snapshot")

			// A later successful commit clears the error
			require.NoError(t, repo.SaveSnapshot(ctx, next, o.Status()))
			got, err = repo.Get(ctx, o.ID())
			require.NoError(t, err)
			assert.Empty(t, got.Error)
		})
	}
}

func TestRepository_ListAndDelete(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			repo := NewRepository(openTestDB(t, driver), testLogger())
			clock := int64(1700000000)
			repo.now = func() time.Time { clock++; return time.Unix(clock, 0) }

			_, snapshot := storedRun(t)
			bars := profitBars(t)
			for _, id := range []string{"a", "b"} {
				require.NoError(t, repo.Create(ctx, Record{ID: id, Status: StatusRunning, Params: profitParams()}, snapshot, bars))
			}

			list, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "b", list[0].ID, "newest first")

			require.NoError(t, repo.Delete(ctx, "a"))
			assert.ErrorIs(t, repo.Delete(ctx, "a"), domain.ErrBacktestNotFound)

			bars, err = repo.LoadBars(ctx, "a")
			require.NoError(t, err)
			assert.Empty(t, bars)

			list, err = repo.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestRepository_NotFound(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			repo := NewRepository(openTestDB(t, driver), testLogger())

			_, err := repo.Get(ctx, "missing")
			assert.ErrorIs(t, err, domain.ErrBacktestNotFound)
			_, err = repo.LoadSnapshot(ctx, "missing")
			assert.ErrorIs(t, err, domain.ErrBacktestNotFound)
			assert.ErrorIs(t, repo.MarkError(ctx, "missing", "x"), domain.ErrBacktestNotFound)

			list, err := repo.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestRepository_CreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestDB(t, "modernc"), testLogger())

	_, snapshot := storedRun(t)
	bars := profitBars(t)
	bars = append(bars, bars[0]) // duplicate primary key

	err := repo.Create(ctx, Record{ID: "dup", Status: StatusRunning, Params: profitParams()}, snapshot, bars)
	require.Error(t, err)

	_, err = repo.Get(ctx, "dup")
	assert.ErrorIs(t, err, domain.ErrBacktestNotFound)
}
