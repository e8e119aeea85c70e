package sizing

import (
	"fmt"
	"math"

	"github.com/aristath/etf-backtester/internal/domain"
)

// ChunkProgression splits the initial capital into equal chunks. Every chunk
// carries a level that rises on new equity highs and falls on drawdowns; a
// trade invests baseChunkSize * progressionFactor^level from the next
// available chunk in round-robin order.
type ChunkProgression struct {
	capitalMode       CapitalMode
	baseChunkSize     float64
	progressionFactor float64
	maxTradeCap       float64
	minTradeAmount    float64
	initialChunk      float64

	chunks     []ChunkState
	index      int
	equityHigh float64
	// chunk ids funding each symbol's open buys, most recent last
	symbolChunks map[string][]int
}

// NewChunkProgression creates the strategy with all chunks idle at level 0
func NewChunkProgression(cfg Config) *ChunkProgression {
	cfg = cfg.WithDefaults()
	n := cfg.Chunk.NumberOfChunks
	chunkCapital := cfg.InitialCapital / float64(n)

	c := &ChunkProgression{
		capitalMode:       cfg.CapitalMode,
		baseChunkSize:     cfg.Chunk.BaseChunkSize,
		progressionFactor: cfg.Chunk.ProgressionFactor,
		maxTradeCap:       cfg.Fractional.MaxTradeCap,
		minTradeAmount:    cfg.MinTradeAmount,
		initialChunk:      chunkCapital,
		chunks:            make([]ChunkState, n),
		equityHigh:        cfg.InitialCapital,
		symbolChunks:      make(map[string][]int),
	}
	for i := range c.chunks {
		c.chunks[i] = ChunkState{
			ID:             i,
			Capital:        chunkCapital,
			LastEquityHigh: cfg.InitialCapital,
		}
	}
	return c
}

func (c *ChunkProgression) sealed() {}

// Mode implements Strategy
func (c *ChunkProgression) Mode() CompoundingMode { return ModeChunkProgression }

// Chunks returns a copy of the chunk states
func (c *ChunkProgression) Chunks() []ChunkState {
	return append([]ChunkState(nil), c.chunks...)
}

func available(chunk ChunkState) bool {
	return !chunk.IsActive || chunk.Capital > chunkMinCapital
}

// nextChunk returns the index of the next available chunk at or after the cursor
func (c *ChunkProgression) nextChunk() (int, bool) {
	for i := 0; i < len(c.chunks); i++ {
		idx := (c.index + i) % len(c.chunks)
		if available(c.chunks[idx]) {
			return idx, true
		}
	}
	return 0, false
}

// Size implements Strategy
func (c *ChunkProgression) Size(_ string, _, availableCash, equity float64) float64 {
	idx, ok := c.nextChunk()
	if !ok {
		return 0
	}
	chunk := c.chunks[idx]
	amount := c.baseChunkSize * math.Pow(c.progressionFactor, float64(chunk.CurrentLevel))
	if c.capitalMode == CapitalIndependent {
		amount = math.Min(amount, chunk.Capital)
	}
	return applyCaps(amount, c.maxTradeCap, availableCash, c.minTradeAmount)
}

// OnTradeSettled debits buys from the funding chunk and credits sell proceeds
// according to the capital mode
func (c *ChunkProgression) OnTradeSettled(trade domain.Trade, _, _ float64) {
	switch trade.Action {
	case domain.ActionBuy:
		idx, ok := c.nextChunk()
		if !ok {
			idx = c.index % len(c.chunks)
		}
		c.chunks[idx].IsActive = true
		c.chunks[idx].Capital -= trade.Amount
		c.symbolChunks[trade.Symbol] = append(c.symbolChunks[trade.Symbol], idx)
		c.index = (idx + 1) % len(c.chunks)

	case domain.ActionSell:
		funding := c.symbolChunks[trade.Symbol]
		fundedBy := -1
		if n := len(funding); n > 0 {
			fundedBy = funding[n-1]
			if n == 1 {
				delete(c.symbolChunks, trade.Symbol)
			} else {
				c.symbolChunks[trade.Symbol] = funding[:n-1]
			}
		}

		if c.capitalMode == CapitalIndependent && fundedBy >= 0 {
			c.credit(fundedBy, trade.Amount)
			return
		}
		share := trade.Amount / float64(len(c.chunks))
		for i := range c.chunks {
			c.credit(i, share)
		}
	}
}

func (c *ChunkProgression) credit(idx int, amount float64) {
	c.chunks[idx].Capital += amount
	if c.chunks[idx].Capital >= c.initialChunk {
		c.chunks[idx].IsActive = false
	}
}

// ObserveEquity raises every chunk level on a new equity high and lowers them
// while the drawdown from the high exceeds the threshold
func (c *ChunkProgression) ObserveEquity(equity float64) {
	if equity > c.equityHigh {
		c.equityHigh = equity
		for i := range c.chunks {
			c.chunks[i].LastEquityHigh = equity
			if c.chunks[i].CurrentLevel < chunkMaxLevel {
				c.chunks[i].CurrentLevel++
			}
		}
		return
	}
	if c.equityHigh <= 0 {
		return
	}
	if (c.equityHigh-equity)/c.equityHigh > chunkDrawdownThreshold {
		for i := range c.chunks {
			if c.chunks[i].CurrentLevel > 0 {
				c.chunks[i].CurrentLevel--
			}
		}
	}
}

// AvailableCapital sums the capital of chunks that can still fund a trade
func (c *ChunkProgression) AvailableCapital(float64) float64 {
	total := 0.0
	for _, chunk := range c.chunks {
		if available(chunk) {
			total += chunk.Capital
		}
	}
	return total
}

// State implements Strategy
func (c *ChunkProgression) State() State {
	symbolChunks := make(map[string][]int, len(c.symbolChunks))
	for symbol, ids := range c.symbolChunks {
		symbolChunks[symbol] = append([]int(nil), ids...)
	}
	return State{
		Mode:         ModeChunkProgression,
		Chunks:       c.Chunks(),
		ChunkIndex:   c.index,
		EquityHigh:   c.equityHigh,
		SymbolChunks: symbolChunks,
	}
}

// Restore implements Strategy
func (c *ChunkProgression) Restore(s State) error {
	if err := checkMode(s, ModeChunkProgression); err != nil {
		return err
	}
	if len(s.Chunks) != len(c.chunks) {
		return fmt.Errorf("cannot restore %d chunks into strategy with %d", len(s.Chunks), len(c.chunks))
	}
	if s.ChunkIndex < 0 || s.ChunkIndex >= len(c.chunks) {
		return fmt.Errorf("chunk index %d out of range", s.ChunkIndex)
	}
	c.chunks = append([]ChunkState(nil), s.Chunks...)
	c.index = s.ChunkIndex
	c.equityHigh = s.EquityHigh
	c.symbolChunks = make(map[string][]int, len(s.SymbolChunks))
	for symbol, ids := range s.SymbolChunks {
		c.symbolChunks[symbol] = append([]int(nil), ids...)
	}
	return nil
}
