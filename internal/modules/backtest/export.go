package backtest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrUnknownArtifact is returned for artifact names other than the known files
var ErrUnknownArtifact = errors.New("unknown artifact")

const (
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

// ArtifactNames lists every downloadable artifact file
var ArtifactNames = []string{
	"trades.json", "equity.json", "holdings.json", "metrics.json",
	"trades.csv", "equity.csv", "holdings.csv", "metrics.csv",
}

// ArtifactFile renders one artifact by file name, e.g. "trades.csv"
func ArtifactFile(a Artifacts, name string) ([]byte, string, error) {
	ext := path.Ext(name)
	var value interface{}
	switch strings.TrimSuffix(name, ext) {
	case "trades":
		value = a.Trades
	case "equity":
		value = a.Equity
	case "holdings":
		value = a.Holdings
	case "metrics":
		value = []Metrics{a.Metrics}
		if ext == ".json" {
			value = a.Metrics
		}
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownArtifact, name)
	}

	switch ext {
	case ".json":
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode %s: %w", name, err)
		}
		return data, ContentTypeJSON, nil
	case ".csv":
		var buf bytes.Buffer
		if err := WriteCSV(&buf, value); err != nil {
			return nil, "", fmt.Errorf("failed to encode %s: %w", name, err)
		}
		return buf.Bytes(), ContentTypeCSV, nil
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownArtifact, name)
	}
}

// WriteCSV writes a slice of records as CSV. The header is the JSON field
// order of the first record; nested values are written as JSON text. An
// empty slice writes nothing.
func WriteCSV(w io.Writer, rows interface{}) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("csv export needs a list of objects: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	header, err := objectKeys(records[0])
	if err != nil {
		return err
	}

	out := csv.NewWriter(w)
	if err := out.Write(header); err != nil {
		return err
	}
	for i, raw := range records {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		row := make([]string, len(header))
		for j, key := range header {
			row[j] = cell(fields[key])
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, errors.New("csv export needs a list of objects")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func cell(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
