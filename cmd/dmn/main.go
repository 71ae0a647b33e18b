// Command dmn evaluates one decision table from a directory of YAML tables
// against a JSON facts file and prints the result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/liamcoop/decisions/decision"
	"github.com/liamcoop/decisions/hitpolicy"
	"github.com/liamcoop/decisions/internal/logger"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		var hpErr *hitpolicy.Error
		if errors.As(err, &hpErr) {
			fmt.Fprintln(os.Stderr, hpErr.Error())
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "dmn: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("dmn", flag.ContinueOnError)
	tablesDir := fs.String("tables", ".", "Directory of YAML decision tables")
	tableKey := fs.String("table", "", "Key of the table to evaluate (required)")
	factsPath := fs.String("facts", "-", "JSON facts file, - for stdin")
	preview := fs.Bool("preview", false, "Enable the PRIORITY and OUTPUT ORDER hit policies")
	logLevel := fs.String("log-level", "WARN", "Log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tableKey == "" {
		return errors.New("-table is required")
	}

	if err := logger.Setup(ctx, logger.Options{Level: *logLevel, Output: os.Stderr}); err != nil {
		return err
	}

	tables, err := decision.LoadTablesDir(*tablesDir)
	if err != nil {
		return err
	}

	store := decision.NewInMemoryTableStore()
	for _, t := range tables {
		if t.ID == "" {
			t.ID = t.Key
		}
		if err := store.Add(t); err != nil {
			return fmt.Errorf("table %s: %w", t.Key, err)
		}
	}
	logger.Debug("tables loaded", "dir", *tablesDir, "count", len(tables))

	cfg := decision.DefaultConfig()
	cfg.PreviewFeaturesEnabled = *preview
	engine, err := decision.NewEngine(store, cfg)
	if err != nil {
		return err
	}

	facts, err := readFacts(*factsPath, stdin)
	if err != nil {
		return err
	}

	result, err := engine.EvaluateByKey(ctx, *tableKey, facts)
	if err != nil {
		return err
	}
	logger.Debug("table evaluated", "table", *tableKey, "matched", result.MatchedRules, "duration", result.Duration)

	if result.Result == nil {
		result.Result = hitpolicy.Result{}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readFacts(path string, stdin io.Reader) (map[string]any, error) {
	if path == "-" {
		return decision.DecodeFacts(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open facts file: %w", err)
	}
	defer f.Close()
	return decision.DecodeFacts(f)
}
