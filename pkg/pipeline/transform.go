package pipeline

import (
	"strings"

	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/dataset"
)

// applyTransformations produces a derived dataset with the contract's
// transformations applied in declaration order. The source dataset is
// never touched. Unknown ops are rejected at contract load time, so a
// stray one here is simply skipped.
func applyTransformations(trs []contract.Transformation, ds *dataset.Dataset) *dataset.Dataset {
	out := ds
	for _, tr := range trs {
		switch tr.Op {
		case "rename_column":
			out = renameColumn(out, tr.Column, tr.To)
		case "drop_column":
			out = dropColumn(out, tr.Column)
		case "uppercase":
			out = mapColumn(out, tr.Column, strings.ToUpper)
		case "lowercase":
			out = mapColumn(out, tr.Column, strings.ToLower)
		case "trim":
			out = mapColumn(out, tr.Column, strings.TrimSpace)
		}
	}
	return out
}

func renameColumn(ds *dataset.Dataset, from, to string) *dataset.Dataset {
	cols := ds.Columns()
	for i, c := range cols {
		if c == from {
			cols[i] = to
		}
	}
	out := dataset.New(cols)
	for i := 0; i < ds.Len(); i++ {
		row := ds.Row(i).Clone()
		if v, ok := row[from]; ok {
			delete(row, from)
			row[to] = v
		}
		out.Append(row)
	}
	return out
}

func dropColumn(ds *dataset.Dataset, col string) *dataset.Dataset {
	var cols []string
	for _, c := range ds.Columns() {
		if c != col {
			cols = append(cols, c)
		}
	}
	out := dataset.New(cols)
	for i := 0; i < ds.Len(); i++ {
		row := ds.Row(i).Clone()
		delete(row, col)
		out.Append(row)
	}
	return out
}

// mapColumn applies a text transform to every non-null cell in the
// column.
func mapColumn(ds *dataset.Dataset, col string, fn func(string) string) *dataset.Dataset {
	out := dataset.New(ds.Columns())
	for i := 0; i < ds.Len(); i++ {
		row := ds.Row(i).Clone()
		if v, ok := row[col]; ok && !v.IsNull() {
			row[col] = dataset.V(fn(v.Text()))
		}
		out.Append(row)
	}
	return out
}
