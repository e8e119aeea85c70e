package backtest

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/modules/sizing"
)

const snapshotVersion = 1

// Snapshot is the persisted form of a run between steps
type Snapshot struct {
	Version     int          `msgpack:"version"`
	ID          string       `msgpack:"id"`
	Params      Params       `msgpack:"params"`
	State       State        `msgpack:"state"`
	Lots        []domain.Lot `msgpack:"lots"`
	LotSequence int64        `msgpack:"lot_sequence"`
	Sizing      sizing.State `msgpack:"sizing"`
}

// EncodeSnapshot serialises a snapshot with msgpack
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot %s: %w", s.ID, err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot produced by EncodeSnapshot
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return &s, nil
}
