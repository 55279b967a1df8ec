package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/credscore/pkg/features"
	"github.com/mchmarny/credscore/pkg/net"
	"github.com/mchmarny/credscore/pkg/table"
	"github.com/urfave/cli/v2"
)

const (
	batchOutputDefault = "predictions_with_risk.csv"
	batchPreviewRows   = 5
)

var (
	inputFlag = &cli.StringFlag{
		Name:     "input",
		Aliases:  []string{"i"},
		Usage:    "CSV file (path or URL) with one applicant per row",
		Required: true,
	}

	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Where to write the scored CSV, - for stdout",
		Value:   batchOutputDefault,
	}

	batchCmd = &cli.Command{
		Name:    "batch",
		Aliases: []string{"b"},
		Usage:   "Score every row of a CSV file",
		UsageText: `credscore batch --input applicants.csv
   credscore batch --input applicants.csv --output - > scored.csv`,
		Action: cmdBatch,
		Flags: []cli.Flag{
			inputFlag,
			outputFlag,
		},
	}
)

// BatchSummary describes a scored file.
type BatchSummary struct {
	Input   string         `json:"input" yaml:"input"`
	Output  string         `json:"output" yaml:"output"`
	Rows    int            `json:"rows" yaml:"rows"`
	Columns int            `json:"columns" yaml:"columns"`
	Tiers   map[string]int `json:"tiers" yaml:"tiers"`
	// Preview holds the first scored rows.
	Preview []map[string]table.Value `json:"preview" yaml:"preview"`
}

func cmdBatch(c *cli.Context) (retErr error) {
	cfg := getConfig(c)
	in := c.String(inputFlag.Name)

	path, err := net.Fetch(c.Context, in, filepath.Join(cfg.HomeDir, cacheDirName))
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	t, err := table.ReadCSVFile(path)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	svc, err := getService(c)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	res, err := svc.ScoreTable(c.Context, t)
	if err != nil {
		var mc *features.MissingColumnsError
		if errors.As(err, &mc) {
			return fmt.Errorf("input does not match the model features: %w", err)
		}
		return fmt.Errorf("scoring batch: %w", err)
	}

	out := c.String(outputFlag.Name)
	if out == "-" {
		return table.WriteCSV(stdout, res.Table, true)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing %s: %w", out, cerr)
		}
	}()
	if err := table.WriteCSV(f, res.Table, true); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	slog.Debug("batch scored", "rows", res.Rows, "output", out)

	return encode(&BatchSummary{
		Input:   in,
		Output:  out,
		Rows:    res.Rows,
		Columns: res.Columns,
		Tiers:   tierCounts(res.Probabilities),
		Preview: res.Table.Head(batchPreviewRows).Records(),
	})
}
