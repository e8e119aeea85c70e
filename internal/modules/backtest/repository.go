package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/etf-backtester/internal/database"
	"github.com/aristath/etf-backtester/internal/domain"
)

// Record is the persisted summary of a backtest
type Record struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Params      Params    `json:"params"`
	DataSource  string    `json:"dataSource"`
	CurrentDate string    `json:"currentDate"`
	Equity      float64   `json:"equity"`
	TotalTrades int       `json:"totalTrades"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Repository stores backtests, their bars and committed snapshots.
// Database: backtests.db (backtests, backtest_bars tables)
type Repository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewRepository creates a repository over a migrated connection
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "backtests").Logger(),
	}
}

// Create inserts a new backtest with its initial snapshot and bars in one transaction
func (r *Repository) Create(ctx context.Context, rec Record, snapshot []byte, bars []domain.Bar) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	now := r.now().Unix()

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backtests (id, status, params, data_source, snapshot, error, sim_date, equity, total_trades, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, '', ?, ?, ?, ?, ?)
		`, rec.ID, string(rec.Status), string(params), rec.DataSource, snapshot, rec.CurrentDate, rec.Equity, rec.TotalTrades, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert backtest: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO backtest_bars (backtest_id, date, symbol, open, high, low, close, volume, sector)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare bar insert: %w", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			if _, err := stmt.ExecContext(ctx, rec.ID, bar.Date, bar.Symbol, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Sector); err != nil {
				return fmt.Errorf("failed to insert bar %s %s: %w", bar.Symbol, bar.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Str("backtest_id", rec.ID).Int("bars", len(bars)).Msg("Backtest stored")
	return nil
}

// SaveSnapshot commits the snapshot of a successful step batch
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot []byte, report StatusReport) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE backtests
		SET status = ?, snapshot = ?, error = '', sim_date = ?, equity = ?, total_trades = ?, updated_at = ?
		WHERE id = ?
	`, string(report.Status), snapshot, report.CurrentDate, report.Equity, report.TotalTrades, r.now().Unix(), report.ID)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", report.ID, err)
	}
	return requireRow(result)
}

// MarkError records a failed step without touching the snapshot
func (r *Repository) MarkError(ctx context.Context, id, message string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE backtests SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, string(StatusError), message, r.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark %s as failed: %w", id, err)
	}
	return requireRow(result)
}

// LoadSnapshot returns the last committed snapshot of a backtest
func (r *Repository) LoadSnapshot(ctx context.Context, id string) ([]byte, error) {
	var snapshot []byte
	err := r.db.QueryRowContext(ctx, `SELECT snapshot FROM backtests WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBacktestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", id, err)
	}
	return snapshot, nil
}

// LoadBars returns the bars a backtest was started with, ordered by date then symbol
func (r *Repository) LoadBars(ctx context.Context, id string) ([]domain.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, symbol, open, high, low, close, volume, sector
		FROM backtest_bars
		WHERE backtest_id = ?
		ORDER BY date, symbol
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", id, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var bar domain.Bar
		if err := rows.Scan(&bar.Date, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.Sector); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// Get returns the stored summary of one backtest
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, params, data_source, sim_date, equity, total_trades, error, created_at, updated_at
		FROM backtests WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, domain.ErrBacktestNotFound
	}
	return rec, err
}

// List returns all backtests, most recently created first
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, params, data_source, sim_date, equity, total_trades, error, created_at, updated_at
		FROM backtests
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list backtests: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes a backtest and its bars
func (r *Repository) Delete(ctx context.Context, id string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_bars WHERE backtest_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete bars for %s: %w", id, err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM backtests WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete backtest %s: %w", id, err)
		}
		return requireRow(result)
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec     Record
		status  string
		params  string
		created int64
		updated int64
	)
	err := s.Scan(&rec.ID, &status, &params, &rec.DataSource, &rec.CurrentDate, &rec.Equity, &rec.TotalTrades, &rec.Error, &created, &updated)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
		return Record{}, fmt.Errorf("failed to decode params of %s: %w", rec.ID, err)
	}
	rec.Status = Status(status)
	rec.CreatedAt = time.Unix(created, 0).UTC()
	rec.UpdatedAt = time.Unix(updated, 0).UTC()
	return rec, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrBacktestNotFound
	}
	return nil
}
