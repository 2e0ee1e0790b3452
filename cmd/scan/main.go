// scan evaluates one municipal CSV export from the command line and prints
// the resulting alerts as JSON. Useful for auditing a dataset without
// running the full server.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ivossos/fiscalwatch/internal/config"
	"github.com/ivossos/fiscalwatch/internal/domain"
	"github.com/ivossos/fiscalwatch/internal/ingest"
	"github.com/ivossos/fiscalwatch/internal/rules"
)

func main() {
	datasetType := flag.String("type", "", "dataset type: folha, despesas or contratos")
	file := flag.String("file", "-", "CSV file to scan (- reads stdin)")
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	verbose := flag.Bool("v", false, "log detector activity to stderr")
	flag.Parse()

	t := domain.DatasetType(*datasetType)
	if !t.Valid() {
		fmt.Fprintln(os.Stderr, "usage: scan -type folha|despesas|contratos [-file export.csv]")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *file, err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	ctx := context.Background()

	raw, err := ingest.ParseCSV(in, t)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse CSV: %v\n", err)
		os.Exit(1)
	}
	if raw.Skipped > 0 {
		logger.Warn("skipped unparseable rows", "count", raw.Skipped)
	}

	processor := ingest.NewProcessor(logger, nil, ingest.NewStaticPriceSource())
	set, err := processor.Process(ctx, t, raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to process batch: %v\n", err)
		os.Exit(1)
	}

	engine := rules.NewEngine(logger)
	results := engine.Evaluate(ctx, set, cfg.Thresholds)
	alerts := rules.NewMaterializer().Materialize(results)

	out := struct {
		DatasetType domain.DatasetType `json:"dataset_type"`
		Records     int                `json:"records"`
		Skipped     int                `json:"skipped"`
		Alerts      []*domain.Alert    `json:"alerts"`
	}{
		DatasetType: t,
		Records:     set.Len(),
		Skipped:     raw.Skipped,
		Alerts:      alerts,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}

	if len(alerts) > 0 {
		os.Exit(3)
	}
}
