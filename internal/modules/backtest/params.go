// Package backtest owns simulation time for one run. It drives the decision
// engine day by day and snapshots the state needed to pause and resume.
package backtest

import (
	"fmt"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/modules/indicators"
	"github.com/aristath/etf-backtester/internal/modules/sizing"
	"github.com/aristath/etf-backtester/internal/modules/strategy"
)

// ExecutionPrice selects which bar price trades fill at
type ExecutionPrice string

const (
	ExecuteAtOpen  ExecutionPrice = "open"
	ExecuteAtClose ExecutionPrice = "close"
)

// Parameter bounds
const (
	maxProfitTarget       = 50.0
	maxAveragingThreshold = 20.0
	maxETFsPerSector      = 10
	maxTopK               = 20
	maxNumberOfChunks     = 1000
	maxLookbackPeriod     = 1000
)

// Params is the immutable configuration of one run
type Params struct {
	StartDate          string                 `json:"startDate" yaml:"startDate" msgpack:"start_date"`
	EndDate            string                 `json:"endDate" yaml:"endDate" msgpack:"end_date"`
	InitialCapital     float64                `json:"initialCapital" yaml:"initialCapital" msgpack:"initial_capital"`
	ProfitTarget       float64                `json:"profitTarget" yaml:"profitTarget" msgpack:"profit_target"`
	AveragingThreshold float64                `json:"averagingThreshold" yaml:"averagingThreshold" msgpack:"averaging_threshold"`
	MaxETFsPerSector   int                    `json:"maxETFsPerSector" yaml:"maxETFsPerSector" msgpack:"max_etfs_per_sector"`
	TopK               int                    `json:"topK" yaml:"topK" msgpack:"top_k"`
	ExecutionPrice     ExecutionPrice         `json:"executionPrice" yaml:"executionPrice" msgpack:"execution_price"`
	CapitalMode        sizing.CapitalMode     `json:"capitalMode" yaml:"capitalMode" msgpack:"capital_mode"`
	CompoundingMode    sizing.CompoundingMode `json:"compoundingMode" yaml:"compoundingMode" msgpack:"compounding_mode"`
	MinTradeAmount     float64                `json:"minTradeAmount,omitempty" yaml:"minTradeAmount,omitempty" msgpack:"min_trade_amount"`
	IndicatorPeriod    int                    `json:"indicatorPeriod,omitempty" yaml:"indicatorPeriod,omitempty" msgpack:"indicator_period"`

	ChunkConfig      *sizing.ChunkConfig      `json:"chunkConfig,omitempty" yaml:"chunkConfig,omitempty" msgpack:"chunk_config,omitempty"`
	FractionalConfig *sizing.FractionalConfig `json:"fractionalConfig,omitempty" yaml:"fractionalConfig,omitempty" msgpack:"fractional_config,omitempty"`
	KellyConfig      *sizing.KellyConfig      `json:"kellyConfig,omitempty" yaml:"kellyConfig,omitempty" msgpack:"kelly_config,omitempty"`
}

// DefaultParams returns a complete parameter set with the standard strategy settings
func DefaultParams() Params {
	return Params{
		InitialCapital:     1000000,
		ProfitTarget:       6,
		AveragingThreshold: 2.5,
		MaxETFsPerSector:   3,
		TopK:               5,
		ExecutionPrice:     ExecuteAtClose,
		CapitalMode:        sizing.CapitalGlobalPool,
		CompoundingMode:    sizing.ModeFixedFractional,
	}.WithDefaults()
}

// WithDefaults fills optional settings. Required settings are left untouched
// so that Validate can report them.
func (p Params) WithDefaults() Params {
	if p.ExecutionPrice == "" {
		p.ExecutionPrice = ExecuteAtClose
	}
	if p.MinTradeAmount <= 0 {
		p.MinTradeAmount = sizing.DefaultMinTradeAmount
	}
	if p.IndicatorPeriod <= 0 {
		p.IndicatorPeriod = indicators.DefaultPeriod
	}

	cfg := p.SizingConfig().WithDefaults()
	chunk, fractional, kelly := cfg.Chunk, cfg.Fractional, cfg.Kelly
	p.ChunkConfig = &chunk
	p.FractionalConfig = &fractional
	p.KellyConfig = &kelly
	return p
}

// Validate checks every field and returns all problems at once
func (p Params) Validate() error {
	var errs domain.ValidationErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, domain.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	start, startErr := domain.ParseDate(p.StartDate)
	end, endErr := domain.ParseDate(p.EndDate)
	switch {
	case p.StartDate == "":
		add("startDate", "is required")
	case startErr != nil:
		add("startDate", "must be a date in YYYY-MM-DD format")
	}
	switch {
	case p.EndDate == "":
		add("endDate", "is required")
	case endErr != nil:
		add("endDate", "must be a date in YYYY-MM-DD format")
	}
	if startErr == nil && endErr == nil && !start.Before(end) {
		add("startDate", "must be before endDate")
	}

	if p.InitialCapital <= 0 {
		add("initialCapital", "must be positive")
	}
	if p.ProfitTarget <= 0 || p.ProfitTarget > maxProfitTarget {
		add("profitTarget", "must be greater than 0 and at most %.0f%%", maxProfitTarget)
	}
	if p.AveragingThreshold <= 0 || p.AveragingThreshold > maxAveragingThreshold {
		add("averagingThreshold", "must be greater than 0 and at most %.0f%%", maxAveragingThreshold)
	}
	if p.MaxETFsPerSector < 1 || p.MaxETFsPerSector > maxETFsPerSector {
		add("maxETFsPerSector", "must be between 1 and %d", maxETFsPerSector)
	}
	if p.TopK < 1 || p.TopK > maxTopK {
		add("topK", "must be between 1 and %d", maxTopK)
	}
	if p.ExecutionPrice != "" && p.ExecutionPrice != ExecuteAtOpen && p.ExecutionPrice != ExecuteAtClose {
		add("executionPrice", "must be one of open, close")
	}
	if !p.CapitalMode.Valid() {
		add("capitalMode", "must be one of %s, %s", sizing.CapitalGlobalPool, sizing.CapitalIndependent)
	}
	if !p.CompoundingMode.Valid() {
		add("compoundingMode", "must be one of %s, %s, %s",
			sizing.ModeChunkProgression, sizing.ModeFixedFractional, sizing.ModeKellyFractional)
	}
	if p.MinTradeAmount < 0 {
		add("minTradeAmount", "must not be negative")
	}
	if p.IndicatorPeriod < 0 {
		add("indicatorPeriod", "must not be negative")
	}

	if c := p.ChunkConfig; c != nil {
		if c.NumberOfChunks < 0 || c.NumberOfChunks > maxNumberOfChunks {
			add("chunkConfig.numberOfChunks", "must be between 1 and %d", maxNumberOfChunks)
		}
		if c.BaseChunkSize < 0 {
			add("chunkConfig.baseChunkSize", "must be positive")
		}
		if c.ProgressionFactor < 0 {
			add("chunkConfig.progressionFactor", "must be positive")
		}
	}
	if f := p.FractionalConfig; f != nil {
		if f.Fraction < 0 || f.Fraction > 1 {
			add("fractionalConfig.fraction", "must be between 0 and 1")
		}
		if f.MaxTradeCap < 0 {
			add("fractionalConfig.maxTradeCap", "must be positive")
		}
	}
	if k := p.KellyConfig; k != nil {
		if k.LookbackPeriod < 0 || k.LookbackPeriod > maxLookbackPeriod {
			add("kellyConfig.lookbackPeriod", "must be between 1 and %d", maxLookbackPeriod)
		}
		if k.MaxFraction < 0 || k.MaxFraction > 1 {
			add("kellyConfig.maxFraction", "must be between 0 and 1")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SizingConfig extracts the sizing strategy configuration
func (p Params) SizingConfig() sizing.Config {
	cfg := sizing.Config{
		CompoundingMode: p.CompoundingMode,
		CapitalMode:     p.CapitalMode,
		InitialCapital:  p.InitialCapital,
		MinTradeAmount:  p.MinTradeAmount,
	}
	if p.ChunkConfig != nil {
		cfg.Chunk = *p.ChunkConfig
	}
	if p.FractionalConfig != nil {
		cfg.Fractional = *p.FractionalConfig
	}
	if p.KellyConfig != nil {
		cfg.Kelly = *p.KellyConfig
	}
	return cfg
}

// Rules extracts the decision engine thresholds
func (p Params) Rules() strategy.Rules {
	return strategy.Rules{
		ProfitTarget:       p.ProfitTarget,
		AveragingThreshold: p.AveragingThreshold,
		MaxETFsPerSector:   p.MaxETFsPerSector,
		TopK:               p.TopK,
	}
}
