package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/events"
	"github.com/aristath/etf-backtester/internal/metrics"
	"github.com/aristath/etf-backtester/internal/modules/marketdata"
)

// Loader fetches historical bars
type Loader interface {
	Load(ctx context.Context, req marketdata.Request) ([]domain.Bar, error)
	Resolve(req marketdata.Request) marketdata.Kind
}

// CreateRequest starts a backtest
type CreateRequest struct {
	Params     Params          `json:"params" yaml:"params"`
	DataSource marketdata.Kind `json:"dataSource,omitempty" yaml:"dataSource"`
	DataURL    string          `json:"dataUrl,omitempty" yaml:"dataUrl"`
}

// ManagerConfig bounds what the manager accepts
type ManagerConfig struct {
	// MaxActive is the number of unfinished backtests that may be held in memory
	MaxActive   int
	MaxStepDays int
}

type session struct {
	orch     *Orchestrator
	lastUsed time.Time
}

// Manager owns the in-memory sessions of all backtests. Each backtest is
// guarded by its own mutex; the snapshot in the repository is committed
// after every successful step batch, so a session may be dropped at any
// time and resumed on demand.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	locks    map[string]*sync.Mutex

	repo    *Repository
	loader  Loader
	bus     *events.Bus
	metrics *metrics.Recorder
	cfg     ManagerConfig

	newID func() string
	now   func() time.Time
	log   zerolog.Logger
}

// NewManager creates a manager
func NewManager(cfg ManagerConfig, repo *Repository, loader Loader, bus *events.Bus, recorder *metrics.Recorder, log zerolog.Logger) *Manager {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 16
	}
	if cfg.MaxStepDays <= 0 {
		cfg.MaxStepDays = 3650
	}
	return &Manager{
		sessions: make(map[string]*session),
		locks:    make(map[string]*sync.Mutex),
		repo:     repo,
		loader:   loader,
		bus:      bus,
		metrics:  recorder,
		cfg:      cfg,
		newID:    func() string { return "backtest_" + uuid.NewString() },
		now:      time.Now,
		log:      log.With().Str("component", "backtest_manager").Logger(),
	}
}

// MaxStepDays returns the largest accepted step batch
func (m *Manager) MaxStepDays() int { return m.cfg.MaxStepDays }

// Create validates params, loads data, starts the run and persists it
func (m *Manager) Create(ctx context.Context, req CreateRequest) (StatusReport, error) {
	params := req.Params.WithDefaults()
	if err := params.Validate(); err != nil {
		return StatusReport{}, err
	}
	if m.ActiveCount() >= m.cfg.MaxActive {
		return StatusReport{}, domain.ErrCapacityExceeded
	}

	dataReq := marketdata.Request{
		Kind:      req.DataSource,
		URL:       req.DataURL,
		StartDate: params.StartDate,
		EndDate:   params.EndDate,
	}
	source := m.loader.Resolve(dataReq)
	bars, err := m.loader.Load(ctx, dataReq)
	if err != nil {
		m.metrics.DataLoadFailed(string(source))
		return StatusReport{}, err
	}

	id := m.newID()
	orch, err := Start(id, params, bars, m.log)
	if err != nil {
		return StatusReport{}, err
	}
	snapshot, err := EncodeSnapshot(orch.Snapshot())
	if err != nil {
		return StatusReport{}, err
	}

	report := orch.Status()
	rec := Record{
		ID:          id,
		Status:      report.Status,
		Params:      params,
		DataSource:  string(source),
		CurrentDate: report.CurrentDate,
		Equity:      report.Equity,
	}

	m.mu.Lock()
	if m.activeLocked() >= m.cfg.MaxActive {
		m.mu.Unlock()
		return StatusReport{}, domain.ErrCapacityExceeded
	}
	m.locks[id] = &sync.Mutex{}
	m.sessions[id] = &session{orch: orch, lastUsed: m.now()}
	m.mu.Unlock()

	if err := m.repo.Create(ctx, rec, snapshot, bars); err != nil {
		m.drop(id, true)
		m.log.Error().Err(err).Str("backtest_id", id).Msg("Failed to persist backtest")
		return StatusReport{}, err
	}

	m.metrics.BacktestCreated(string(source))
	m.updateGauge()
	m.bus.Emit(id, &events.BacktestCreatedData{
		DataSource: string(source),
		StartDate:  params.StartDate,
		EndDate:    params.EndDate,
		Capital:    params.InitialCapital,
		Bars:       len(bars),
	})
	m.log.Info().Str("backtest_id", id).Str("source", string(source)).Msg("Backtest created")
	return report, nil
}

// Step advances a backtest by up to days calendar days and commits the
// resulting snapshot. On failure the backtest is marked as failed, the last
// committed snapshot is kept and the in-memory session is discarded.
func (m *Manager) Step(ctx context.Context, id string, days int) (StepResult, error) {
	if days < 1 || days > m.cfg.MaxStepDays {
		return StepResult{}, domain.ValidationErrors{{
			Field:   "days",
			Message: fmt.Sprintf("must be between 1 and %d", m.cfg.MaxStepDays),
		}}
	}

	var result StepResult
	err := m.withLock(id, func() error {
		orch, err := m.session(ctx, id)
		if err != nil {
			return err
		}
		if orch.Done() {
			result = orch.stepResult(nil, 0)
			return nil
		}

		started := m.now()
		result, err = orch.Step(days)
		if err != nil {
			m.fail(ctx, id, err)
			return err
		}

		snapshot, err := EncodeSnapshot(orch.Snapshot())
		if err == nil {
			err = m.repo.SaveSnapshot(ctx, snapshot, orch.Status())
		}
		if err != nil {
			m.drop(id, false)
			m.log.Error().Err(err).Str("backtest_id", id).Msg("Failed to commit snapshot")
			return err
		}

		m.metrics.StepObserved(m.now().Sub(started), result.DaysStepped)
		for _, trade := range result.Trades {
			m.metrics.TradeExecuted(string(trade.Action))
		}
		if result.Status == StatusCompleted {
			m.metrics.BacktestFinished(string(StatusCompleted))
		}
		m.publishProgress(orch, len(result.Trades))
		return nil
	})
	m.updateGauge()
	return result, err
}

func (m *Manager) fail(ctx context.Context, id string, stepErr error) {
	m.drop(id, false)
	if err := m.repo.MarkError(ctx, id, stepErr.Error()); err != nil {
		m.log.Error().Err(err).Str("backtest_id", id).Msg("Failed to record step failure")
	}

	date := ""
	var se *domain.StepExecutionError
	if errors.As(stepErr, &se) {
		date = se.Date
	}
	m.metrics.BacktestFinished(string(StatusError))
	m.bus.Emit(id, &events.ErrorEventData{Code: domain.ErrorCode(stepErr), Error: stepErr.Error(), Date: date})
}

func (m *Manager) publishProgress(orch *Orchestrator, newTrades int) {
	report := orch.Status()
	m.bus.Emit(orch.ID(), &events.ProgressData{
		Status:      string(report.Status),
		Progress:    report.Progress,
		CurrentDate: report.CurrentDate,
		Equity:      report.Equity,
		Cash:        report.Cash,
		TotalTrades: report.TotalTrades,
		NewTrades:   newTrades,
		Completed:   report.Status == StatusCompleted,
	})
}

// Status reports the progress of a backtest. Hibernated and failed runs are
// answered from the repository without being resumed.
func (m *Manager) Status(ctx context.Context, id string) (StatusReport, error) {
	var report StatusReport
	err := m.withLock(id, func() error {
		if s, ok := m.live(id); ok {
			report = s.orch.Status()
			return nil
		}
		rec, err := m.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		report = StatusReport{
			ID:          rec.ID,
			Status:      rec.Status,
			Progress:    progress(rec.Params.StartDate, rec.Params.EndDate, rec.CurrentDate),
			CurrentDate: rec.CurrentDate,
			Equity:      rec.Equity,
			TotalTrades: rec.TotalTrades,
			Error:       rec.Error,
		}
		if snapshot, err := m.repo.LoadSnapshot(ctx, id); err == nil {
			if snap, err := DecodeSnapshot(snapshot); err == nil {
				report.Cash = snap.State.Cash
			}
		}
		return nil
	})
	return report, err
}

// Artifacts exports the committed results of a backtest
func (m *Manager) Artifacts(ctx context.Context, id string) (Artifacts, error) {
	var artifacts Artifacts
	err := m.withLock(id, func() error {
		orch, err := m.session(ctx, id)
		if err != nil {
			return err
		}
		artifacts = orch.Artifacts()
		return nil
	})
	m.updateGauge()
	return artifacts, err
}

// List returns every stored backtest
func (m *Manager) List(ctx context.Context) ([]Record, error) {
	return m.repo.List(ctx)
}

// Delete removes a backtest from memory and storage
func (m *Manager) Delete(ctx context.Context, id string) error {
	err := m.withLock(id, func() error {
		if err := m.repo.Delete(ctx, id); err != nil {
			return err
		}
		m.drop(id, false)
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()

	m.updateGauge()
	m.bus.Emit(id, &events.LifecycleData{Kind: events.BacktestDeleted})
	m.log.Info().Str("backtest_id", id).Msg("Backtest deleted")
	return nil
}

// HibernateIdle drops sessions unused for longer than idle and returns how
// many were dropped. Their snapshots are already committed.
func (m *Manager) HibernateIdle(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	dropped := 0
	for _, id := range m.liveIDs() {
		evicted := false
		_ = m.withLock(id, func() error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if s, ok := m.sessions[id]; ok && s.lastUsed.Before(cutoff) {
				delete(m.sessions, id)
				evicted = true
			}
			return nil
		})
		if evicted {
			dropped++
			m.metrics.SessionHibernated()
			m.bus.Emit(id, &events.LifecycleData{Kind: events.BacktestHibernated, Reason: "idle"})
		}
	}
	if dropped > 0 {
		m.updateGauge()
		m.log.Info().Int("sessions", dropped).Msg("Hibernated idle backtests")
	}
	return dropped
}

// AutoStep advances every unfinished in-memory backtest by days and returns
// how many were stepped successfully
func (m *Manager) AutoStep(ctx context.Context, days int) int {
	if days > m.cfg.MaxStepDays {
		days = m.cfg.MaxStepDays
	}
	stepped := 0
	for _, id := range m.liveIDs() {
		s, ok := m.live(id)
		if !ok || s.orch.Done() {
			continue
		}
		if _, err := m.Step(ctx, id, days); err != nil {
			m.log.Warn().Err(err).Str("backtest_id", id).Msg("Auto-step failed")
			continue
		}
		stepped++
	}
	return stepped
}

// ActiveCount returns the number of unfinished sessions held in memory
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

// SessionCount returns the number of sessions held in memory
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, s := range m.sessions {
		if !s.orch.Done() {
			n++
		}
	}
	return n
}

func (m *Manager) updateGauge() {
	m.metrics.SetActiveSessions(m.SessionCount())
}

func (m *Manager) liveIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (m *Manager) live(id string) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) drop(id string, forgetLock bool) {
	m.mu.Lock()
	delete(m.sessions, id)
	if forgetLock {
		delete(m.locks, id)
	}
	m.mu.Unlock()
}

// withLock runs fn holding the mutex of id. Locks of unknown ids are
// released again so lookups of missing backtests do not accumulate.
func (m *Manager) withLock(id string, fn func() error) error {
	m.mu.Lock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	err := fn()
	lock.Unlock()

	if errors.Is(err, domain.ErrBacktestNotFound) {
		m.mu.Lock()
		if _, live := m.sessions[id]; !live && m.locks[id] == lock {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
	return err
}

// session returns the live orchestrator for id, resuming it from the
// repository when it is not in memory. The caller holds the id lock.
func (m *Manager) session(ctx context.Context, id string) (*Orchestrator, error) {
	if s, ok := m.live(id); ok {
		m.mu.Lock()
		s.lastUsed = m.now()
		m.mu.Unlock()
		return s.orch, nil
	}

	data, err := m.repo.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	bars, err := m.repo.LoadBars(ctx, id)
	if err != nil {
		return nil, err
	}
	orch, err := Resume(snap, bars, m.log)
	if err != nil {
		return nil, err
	}
	if rec, err := m.repo.Get(ctx, id); err == nil && rec.Status == StatusError {
		orch.state.Status = StatusError
		orch.state.Error = rec.Error
	}

	m.mu.Lock()
	m.sessions[id] = &session{orch: orch, lastUsed: m.now()}
	m.mu.Unlock()

	m.log.Debug().Str("backtest_id", id).Str("date", snap.State.CurrentDate).Msg("Backtest resumed from snapshot")
	return orch, nil
}
