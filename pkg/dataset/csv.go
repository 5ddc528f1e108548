package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadCSV parses a header-driven CSV stream into a Dataset. Empty cells
// become null values; short rows read as null in the missing columns.
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("read header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.TrimSpace(col)
	}

	ds := New(columns)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", ds.Len()+1, err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if i >= len(rec) || rec[i] == "" {
				row[col] = Null()
				continue
			}
			row[col] = V(rec[i])
		}
		ds.Append(row)
	}
	return ds, nil
}

// WriteCSV renders the dataset as CSV in dataset column order. Null
// cells are written as empty fields.
func WriteCSV(w io.Writer, d *Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(d.Columns()))
	cols := d.Columns()
	for i := 0; i < d.Len(); i++ {
		row := d.Row(i)
		for j, col := range cols {
			rec[j] = row.Get(col).Text()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
