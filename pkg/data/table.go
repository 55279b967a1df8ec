package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/mchmarny/credscore/pkg/table"
)

// LoadTable reads every row of the named table.
func LoadTable(ctx context.Context, db *DB, name string) (*table.Table, error) {
	if db == nil || db.DB == nil {
		return nil, errDBNotInitialized
	}
	if err := validTableName(name); err != nil {
		return nil, err
	}

	q := "SELECT * FROM " + quote(name)
	if db.Driver == DriverSQLite {
		q += " ORDER BY rowid"
	}

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query table %s", name)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read columns")
	}

	out, err := table.New(cols)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid columns in table %s", name)
	}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		row := make([]table.Value, len(cols))
		for i, v := range raw {
			row[i] = toValue(v)
		}
		if err := out.Append(row); err != nil {
			return nil, errors.Wrap(err, "failed to append row")
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read table %s", name)
	}

	slog.Debug("table loaded", "table", name, "rows", out.Len(), "columns", out.NumColumns())
	return out, nil
}

func toValue(v any) table.Value {
	switch x := v.(type) {
	case nil:
		return table.Missing()
	case int64:
		return table.Number(float64(x))
	case float64:
		return table.Number(x)
	case bool:
		if x {
			return table.Number(1)
		}
		return table.Number(0)
	case []byte:
		return table.Parse(string(x))
	case string:
		return table.Parse(x)
	case time.Time:
		return table.String(x.UTC().Format(time.RFC3339))
	default:
		return table.String(fmt.Sprint(x))
	}
}
