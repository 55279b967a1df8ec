package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mchmarny/credscore/pkg/data"
	"github.com/mchmarny/credscore/pkg/net"
	"github.com/mchmarny/credscore/pkg/table"
	"github.com/urfave/cli/v2"
)

var (
	importInputFlag = &cli.StringFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Usage:   "Reference CSV file (path or URL)",
	}

	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "SQLite file or postgres:// DSN to import into (default: ~/.credscore/reference.db)",
	}

	tableFlag = &cli.StringFlag{
		Name:  "table",
		Usage: "Table to create (default: input file name)",
	}

	replaceFlag = &cli.BoolFlag{
		Name:  "replace",
		Usage: "Replace the table if it already exists",
	}

	listFlag = &cli.BoolFlag{
		Name:  "list",
		Usage: "List previous imports instead of importing",
	}

	importCmd = &cli.Command{
		Name:  "import",
		Usage: "Import a reference CSV into a SQL table usable as --reference",
		UsageText: `credscore import --input data/processed/train_fe.csv
   credscore import --input train_fe.csv --db postgres://localhost/credit --table train_fe --replace
   credscore import --list`,
		Action: cmdImport,
		Flags: []cli.Flag{
			importInputFlag,
			dbFlag,
			tableFlag,
			replaceFlag,
			listFlag,
		},
	}
)

func cmdImport(c *cli.Context) error {
	cfg := getConfig(c)

	dsn := c.String(dbFlag.Name)
	if dsn == "" {
		dsn = filepath.Join(cfg.HomeDir, data.DataFileName)
	}

	db, err := data.GetDB(dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := data.Init(c.Context, db); err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	if c.Bool(listFlag.Name) {
		list, err := data.ListImports(c.Context, db)
		if err != nil {
			return fmt.Errorf("listing imports: %w", err)
		}
		return encode(list)
	}

	in := c.String(importInputFlag.Name)
	if in == "" {
		return fmt.Errorf("--%s is required", importInputFlag.Name)
	}

	path, err := net.Fetch(c.Context, in, filepath.Join(cfg.HomeDir, cacheDirName))
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	t, err := table.ReadCSVFile(path)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	name := c.String(tableFlag.Name)
	if name == "" {
		name = tableName(path)
	}

	imp, err := data.SaveTable(c.Context, db, name, in, t, c.Bool(replaceFlag.Name))
	if err != nil {
		return fmt.Errorf("importing %s: %w", in, err)
	}

	return encode(imp)
}

// tableName derives a SQL table name from a file name.
func tableName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	for i, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "reference"
	}
	return b.String()
}
