package data

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mchmarny/credscore/pkg/table"
)

// Import describes one table written by SaveTable.
type Import struct {
	Table      string `json:"table" yaml:"table"`
	Source     string `json:"source" yaml:"source"`
	Rows       int    `json:"rows" yaml:"rows"`
	Columns    int    `json:"columns" yaml:"columns"`
	ImportedAt string `json:"imported_at" yaml:"importedAt"`
}

// SaveTable writes t into a new table called name, replacing an existing
// one when replace is set. Numeric columns are stored as floating point,
// others as TEXT. The import is recorded in import_log.
func SaveTable(ctx context.Context, db *DB, name, source string, t *table.Table, replace bool) (*Import, error) {
	if db == nil || db.DB == nil {
		return nil, errDBNotInitialized
	}
	if err := validTableName(name); err != nil {
		return nil, err
	}
	if t == nil || t.NumColumns() == 0 {
		return nil, errors.New("table has no columns")
	}

	cols := t.Columns()
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	names := make([]string, len(cols))
	text := make([]bool, len(cols))
	for i, c := range cols {
		vals, _ := t.Column(c)
		typ := db.realType()
		if !numeric(vals) {
			typ = "TEXT"
			text[i] = true
		}
		defs[i] = quote(c) + " " + typ
		names[i] = quote(c)
		marks[i] = db.placeholder(i + 1)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if replace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(name)); err != nil {
			return nil, errors.Wrapf(err, "failed to drop table %s", name)
		}
	}

	ddl := "CREATE TABLE " + quote(name) + " (" + strings.Join(defs, ", ") + ")"
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return nil, errors.Wrapf(err, "failed to create table %s", name)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+quote(name)+" ("+strings.Join(names, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to prepare batch statement")
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for r := 0; r < t.Len(); r++ {
		for i, v := range t.Row(r) {
			args[i] = toArg(v, text[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, errors.Wrapf(err, "failed to execute batch statement on row %d", r+1)
		}
	}

	imp := &Import{
		Table:      name,
		Source:     source,
		Rows:       t.Len(),
		Columns:    len(cols),
		ImportedAt: time.Now().UTC().Format(time.RFC3339),
	}
	logSQL := "INSERT INTO import_log (table_name, source, row_count, column_count, imported_at) VALUES (" +
		db.placeholder(1) + ", " + db.placeholder(2) + ", " + db.placeholder(3) + ", " + db.placeholder(4) + ", " + db.placeholder(5) + ")"
	if _, err := tx.ExecContext(ctx, logSQL, imp.Table, imp.Source, imp.Rows, imp.Columns, imp.ImportedAt); err != nil {
		return nil, errors.Wrap(err, "failed to record import")
	}

	if err = tx.Commit(); err != nil {
		return nil, errors.Wrapf(err, "failed to commit transaction")
	}

	return imp, nil
}

// ListImports returns the recorded imports, newest first.
func ListImports(ctx context.Context, db *DB) ([]*Import, error) {
	if db == nil || db.DB == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.QueryContext(ctx, `SELECT table_name, source, row_count, column_count, imported_at
		FROM import_log ORDER BY imported_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query imports")
	}
	defer rows.Close()

	list := make([]*Import, 0)
	for rows.Next() {
		imp := &Import{}
		if err := rows.Scan(&imp.Table, &imp.Source, &imp.Rows, &imp.Columns, &imp.ImportedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan import row")
		}
		list = append(list, imp)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read imports")
	}
	return list, nil
}

func numeric(vals []table.Value) bool {
	for _, v := range vals {
		if !v.IsMissing() && !v.IsNumber() {
			return false
		}
	}
	return true
}

func toArg(v table.Value, text bool) any {
	if v.IsMissing() {
		return nil
	}
	if f, ok := v.Float(); ok && !text {
		return f
	}
	return v.Text()
}
