// Package main runs one backtest from a YAML request file to completion and
// writes its artifacts to a directory.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/aristath/etf-backtester/internal/modules/backtest"
	"github.com/aristath/etf-backtester/internal/modules/marketdata"
	"github.com/aristath/etf-backtester/pkg/logger"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "backtest error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	var (
		paramsFile string
		outDir     string
		batch      int
		logLevel   string
		timeout    time.Duration
	)
	fs.StringVar(&paramsFile, "params", "backtest.yaml", "YAML file with params, dataSource and dataUrl")
	fs.StringVar(&outDir, "out", "artifacts", "directory the artifacts are written to")
	fs.IntVar(&batch, "batch", 30, "calendar days simulated per step")
	fs.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "data download timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if batch < 1 {
		return fmt.Errorf("-batch must be positive, got %d", batch)
	}

	log := logger.New(logger.Config{Level: logLevel, Pretty: true, Output: os.Stderr})

	req, err := readRequest(paramsFile)
	if err != nil {
		return err
	}
	params := req.Params.WithDefaults()
	if err := params.Validate(); err != nil {
		return err
	}

	loader := marketdata.NewLoader(marketdata.NewHTTPSource(timeout, log), nil, "", log)
	bars, err := loader.Load(context.Background(), marketdata.Request{
		Kind:      req.DataSource,
		URL:       req.DataURL,
		StartDate: params.StartDate,
		EndDate:   params.EndDate,
	})
	if err != nil {
		return err
	}

	orch, err := backtest.Start("backtest_"+uuid.NewString(), params, bars, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Backtest %s -> %s  capital=%.2f  bars=%d\n",
		params.StartDate, params.EndDate, params.InitialCapital, len(bars))

	for !orch.Done() {
		result, err := orch.Step(batch)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "  %s  equity=%.2f  trades=+%d\n", result.CurrentDate, result.Equity, len(result.Trades))
	}

	artifacts := orch.Artifacts()
	if err := writeArtifacts(outDir, artifacts); err != nil {
		return err
	}

	summary, err := json.MarshalIndent(artifacts.Metrics, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %d artifacts to %s\n%s\n", len(backtest.ArtifactNames), outDir, summary)
	return nil
}

func readRequest(path string) (backtest.CreateRequest, error) {
	var req backtest.CreateRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read params file: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to parse params file %s: %w", path, err)
	}
	return req, nil
}

func writeArtifacts(dir string, artifacts backtest.Artifacts) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, name := range backtest.ArtifactNames {
		data, _, err := backtest.ArtifactFile(artifacts, name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}
