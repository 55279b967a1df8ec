package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadCSV reads a table with a header row. A leading byte order mark is
// stripped.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv has no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == "" {
			// unnamed index column written by dataframe exports
			header[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}

	t, err := New(header)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		row := make([]Value, len(rec))
		for i, s := range rec {
			row[i] = Parse(s)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// ReadCSVFile opens and reads a CSV file.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes the header and rows. When bom is set the output is
// prefixed with a UTF-8 byte order mark so spreadsheet tools detect the
// encoding.
func WriteCSV(w io.Writer, t *Table, bom bool) (retErr error) {
	if bom {
		tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		defer func() {
			if err := tw.Close(); err != nil && retErr == nil {
				retErr = fmt.Errorf("flush csv: %w", err)
			}
		}()
		w = tw
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(t.columns))
	for _, r := range t.rows {
		for i, v := range r {
			rec[i] = v.Text()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
