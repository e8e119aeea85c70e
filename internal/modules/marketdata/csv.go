// Package marketdata loads historical daily bars from CSV files served over
// HTTP, stored in an S3-compatible bucket, or generated for tests.
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aristath/etf-backtester/internal/domain"
)

// Columns is the canonical column order of a bar CSV
var Columns = []string{"date", "symbol", "open", "high", "low", "close", "volume", "sector"}

// ParseCSV reads bars from r. When the first row is a header the columns are
// mapped by name, otherwise the canonical order is assumed. Blank lines are
// skipped and a blank sector becomes "Other".
func ParseCSV(r io.Reader) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	index := make(map[string]int, len(Columns))
	for i, c := range Columns {
		index[c] = i
	}

	var bars []domain.Bar
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if blank(record) {
			continue
		}
		if first && isHeader(record) {
			first = false
			index = headerIndex(record)
			if missing := missingColumns(index); len(missing) > 0 {
				return nil, fmt.Errorf("header missing columns: %s", strings.Join(missing, ", "))
			}
			continue
		}
		first = false

		bar, err := parseRecord(record, index)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func isHeader(record []string) bool {
	return strings.EqualFold(strings.TrimSpace(record[0]), "date")
}

func headerIndex(record []string) map[string]int {
	index := make(map[string]int, len(record))
	for i, name := range record {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return index
}

func missingColumns(index map[string]int) []string {
	var missing []string
	for _, c := range Columns {
		if c == "sector" {
			continue
		}
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func parseRecord(record []string, index map[string]int) (domain.Bar, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date := field("date")
	if _, err := domain.ParseDate(date); err != nil {
		return domain.Bar{}, err
	}
	symbol := field("symbol")
	if symbol == "" {
		return domain.Bar{}, errors.New("symbol is empty")
	}

	bar := domain.Bar{
		Date:   date,
		Symbol: symbol,
		Sector: domain.NormalizeSector(field("sector")),
	}

	prices := []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close},
	}
	for _, p := range prices {
		v, err := strconv.ParseFloat(field(p.name), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("invalid %s %q", p.name, field(p.name))
		}
		*p.dst = v
	}
	if bar.Close <= 0 {
		return domain.Bar{}, fmt.Errorf("close must be positive, got %v", bar.Close)
	}

	volume := field("volume")
	if volume != "" {
		v, err := strconv.ParseFloat(volume, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("invalid volume %q", volume)
		}
		bar.Volume = int64(v)
	}
	return bar, nil
}
