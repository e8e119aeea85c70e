// Package sizing converts capital and equity into a trade amount. The set of
// strategies is closed: fixed fractional, Kelly-derived fractional and chunk
// progression, selected by CompoundingMode.
package sizing

// CompoundingMode selects the sizing strategy
type CompoundingMode string

const (
	ModeChunkProgression CompoundingMode = "fixed_chunk_progression"
	ModeFixedFractional  CompoundingMode = "fixed_fractional"
	ModeKellyFractional  CompoundingMode = "kelly_fractional"
)

// Valid reports whether m is a known compounding mode
func (m CompoundingMode) Valid() bool {
	switch m {
	case ModeChunkProgression, ModeFixedFractional, ModeKellyFractional:
		return true
	}
	return false
}

// CapitalMode controls how sell proceeds flow back into chunks
type CapitalMode string

const (
	CapitalGlobalPool  CapitalMode = "chunk_global_pool"
	CapitalIndependent CapitalMode = "chunk_independent"
)

// Valid reports whether m is a known capital mode
func (m CapitalMode) Valid() bool {
	return m == CapitalGlobalPool || m == CapitalIndependent
}

// Defaults
const (
	DefaultNumberOfChunks    = 50
	DefaultBaseChunkSize     = 20000.0
	DefaultProgressionFactor = 1.06
	DefaultFraction          = 0.02
	DefaultMaxTradeCap       = 50000.0
	DefaultKellyLookback     = 30
	DefaultKellyMaxFraction  = 0.05
	DefaultMinTradeAmount    = 1000.0

	MinFraction = 0.01
	MaxFraction = 0.05

	kellyMultiplier      = 0.5
	kellyMinHistory      = 10
	kellyDefaultFraction = 0.02

	chunkMaxLevel          = 10
	chunkDrawdownThreshold = 0.10
	chunkMinCapital        = 1000.0
)

// ChunkConfig configures chunk progression
type ChunkConfig struct {
	NumberOfChunks    int     `json:"numberOfChunks" yaml:"numberOfChunks" msgpack:"number_of_chunks"`
	BaseChunkSize     float64 `json:"baseChunkSize" yaml:"baseChunkSize" msgpack:"base_chunk_size"`
	ProgressionFactor float64 `json:"progressionFactor" yaml:"progressionFactor" msgpack:"progression_factor"`
}

// FractionalConfig configures fixed fractional sizing. MaxTradeCap applies to every strategy.
type FractionalConfig struct {
	Fraction    float64 `json:"fraction" yaml:"fraction" msgpack:"fraction"`
	MaxTradeCap float64 `json:"maxTradeCap" yaml:"maxTradeCap" msgpack:"max_trade_cap"`
}

// KellyConfig configures Kelly-derived sizing
type KellyConfig struct {
	LookbackPeriod int     `json:"lookbackPeriod" yaml:"lookbackPeriod" msgpack:"lookback_period"`
	MaxFraction    float64 `json:"maxFraction" yaml:"maxFraction" msgpack:"max_fraction"`
}

// Config carries everything a strategy needs from the backtest parameters
type Config struct {
	CompoundingMode CompoundingMode
	CapitalMode     CapitalMode
	InitialCapital  float64
	MinTradeAmount  float64
	Chunk           ChunkConfig
	Fractional      FractionalConfig
	Kelly           KellyConfig
}

// WithDefaults fills zero-valued settings with their defaults
func (c Config) WithDefaults() Config {
	if c.CapitalMode == "" {
		c.CapitalMode = CapitalGlobalPool
	}
	if c.MinTradeAmount <= 0 {
		c.MinTradeAmount = DefaultMinTradeAmount
	}
	if c.Chunk.NumberOfChunks <= 0 {
		c.Chunk.NumberOfChunks = DefaultNumberOfChunks
	}
	if c.Chunk.BaseChunkSize <= 0 {
		c.Chunk.BaseChunkSize = DefaultBaseChunkSize
	}
	if c.Chunk.ProgressionFactor <= 0 {
		c.Chunk.ProgressionFactor = DefaultProgressionFactor
	}
	if c.Fractional.Fraction <= 0 {
		c.Fractional.Fraction = DefaultFraction
	}
	if c.Fractional.MaxTradeCap <= 0 {
		c.Fractional.MaxTradeCap = DefaultMaxTradeCap
	}
	if c.Kelly.LookbackPeriod <= 0 {
		c.Kelly.LookbackPeriod = DefaultKellyLookback
	}
	if c.Kelly.MaxFraction <= 0 {
		c.Kelly.MaxFraction = DefaultKellyMaxFraction
	}
	return c
}
