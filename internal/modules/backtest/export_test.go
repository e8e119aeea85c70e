package backtest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/etf-backtester/internal/domain"
)

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteCSV_HeaderFollowsFirstRecord(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []EquityPoint{{Date: "2024-01-01", Equity: 100, Cash: 40.5}, {Date: "2024-01-02", Equity: 101, Cash: 41}})
	require.NoError(t, err)

	records := readCSV(t, buf.Bytes())
	require.Len(t, records, 3)
	assert.Equal(t, []string{"date", "equity", "cash"}, records[0])
	assert.Equal(t, []string{"2024-01-01", "100", "40.5"}, records[1])
}

func TestWriteCSV_NestedValuesAreJSON(t *testing.T) {
	holdings := []Holding{{
		Date: "2024-01-02",
		Positions: []domain.Position{{
			Symbol:        "NSE:GOLDBEES",
			Sector:        "Gold",
			TotalQuantity: 10,
			Lots:          []domain.Lot{{ID: "l1", Symbol: "NSE:GOLDBEES", Quantity: 10, Price: 50, Date: "2024-01-01"}},
		}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, holdings))

	records := readCSV(t, buf.Bytes())
	require.Len(t, records, 2)
	assert.Equal(t, []string{"date", "positions"}, records[0])

	var positions []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(records[1][1]), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "NSE:GOLDBEES", positions[0]["symbol"])
}

func TestWriteCSV_EmptyAndInvalid(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []domain.Trade{}))
	assert.Zero(t, buf.Len())

	assert.Error(t, WriteCSV(&buf, []int{1, 2}))
	assert.Error(t, WriteCSV(&buf, map[string]int{"a": 1}))
}

func TestArtifactFile(t *testing.T) {
	o, err := Start("bt", profitParams(), profitBars(t), testLogger())
	require.NoError(t, err)
	_, err = o.Step(10)
	require.NoError(t, err)
	artifacts := o.Artifacts()

	for _, name := range ArtifactNames {
		t.Run(name, func(t *testing.T) {
			data, contentType, err := ArtifactFile(artifacts, name)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
			if name[len(name)-4:] == ".csv" {
				assert.Equal(t, ContentTypeCSV, contentType)
			} else {
				assert.Equal(t, ContentTypeJSON, contentType)
			}
		})
	}

	data, _, err := ArtifactFile(artifacts, "trades.csv")
	require.NoError(t, err)
	records := readCSV(t, data)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"id", "date", "symbol", "action", "quantity", "price", "amount", "sector", "reason", "lotId", "realizedPnL"}, records[0])
	assert.Equal(t, "SELL", records[2][3])

	data, _, err = ArtifactFile(artifacts, "metrics.json")
	require.NoError(t, err)
	var metrics Metrics
	require.NoError(t, json.Unmarshal(data, &metrics))
	assert.Equal(t, 3, metrics.TotalTrades)

	_, _, err = ArtifactFile(artifacts, "secrets.csv")
	assert.ErrorIs(t, err, ErrUnknownArtifact)
	_, _, err = ArtifactFile(artifacts, "trades.xml")
	assert.ErrorIs(t, err, ErrUnknownArtifact)
}
