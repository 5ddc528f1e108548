// Package dataset defines the in-memory tabular dataset model consumed by
// the validation pipeline: ordered rows of named nullable scalars, plus a
// CSV codec for the local/object-store collaborators.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Value is a single nullable cell. The zero Value is null.
type Value struct {
	raw  any
	null bool
}

// Null returns the null Value.
func Null() Value {
	return Value{null: true}
}

// V wraps a scalar into a Value. A nil argument produces the null Value.
func V(raw any) Value {
	if raw == nil {
		return Null()
	}
	return Value{raw: raw}
}

// IsNull reports whether the cell holds no value.
func (v Value) IsNull() bool {
	return v.null
}

// Raw returns the underlying scalar, or nil for the null Value.
func (v Value) Raw() any {
	if v.null {
		return nil
	}
	return v.raw
}

// Text renders the value as a string. Any scalar is coercible to text;
// the null Value renders as the empty string.
func (v Value) Text() string {
	if v.null {
		return ""
	}
	return cast.ToString(v.raw)
}

// Int64 converts the value to an integer, failing unless the value is
// losslessly representable as one ("12", 12, 12.0 pass; "12.5" fails).
func (v Value) Int64() (int64, error) {
	if v.null {
		return 0, fmt.Errorf("null value")
	}
	switch n := v.raw.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case float32:
		return Value{raw: float64(n)}.Int64()
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("%q is not an integer", n)
		}
		return int64(f), nil
	default:
		return cast.ToInt64E(v.raw)
	}
}

// Float64 converts the value to a float, accepting any numeric.
func (v Value) Float64() (float64, error) {
	if v.null {
		return 0, fmt.Errorf("null value")
	}
	return cast.ToFloat64E(v.raw)
}

// boolLiterals is the closed set of accepted boolean spellings.
var boolLiterals = map[string]bool{
	"true": true, "t": true, "yes": true, "y": true, "1": true,
	"false": false, "f": false, "no": false, "n": false, "0": false,
}

// Bool converts the value to a boolean from the closed literal set.
func (v Value) Bool() (bool, error) {
	if v.null {
		return false, fmt.Errorf("null value")
	}
	switch b := v.raw.(type) {
	case bool:
		return b, nil
	default:
		s := strings.ToLower(strings.TrimSpace(cast.ToString(v.raw)))
		val, ok := boolLiterals[s]
		if !ok {
			return false, fmt.Errorf("%q is not a boolean literal", v.Text())
		}
		return val, nil
	}
}

// DateFormat is the single accepted date layout (ISO-8601 calendar date).
const DateFormat = "2006-01-02"

// Date parses the value under the fixed ISO-8601 date format.
func (v Value) Date() (time.Time, error) {
	if v.null {
		return time.Time{}, fmt.Errorf("null value")
	}
	if t, ok := v.raw.(time.Time); ok {
		return t, nil
	}
	return time.Parse(DateFormat, strings.TrimSpace(v.Text()))
}

// Row maps column name to cell value. Columns absent from the map read
// as null through Get.
type Row map[string]Value

// Get returns the cell for a column, or the null Value when absent.
func (r Row) Get(col string) Value {
	v, ok := r[col]
	if !ok {
		return Null()
	}
	return v
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Dataset is an ordered sequence of rows with a stable column order.
// Column order is contract-independent — all lookups go by name.
// The validators treat a Dataset as read-only; derived datasets are
// produced by Filter and Clone, never by in-place mutation.
type Dataset struct {
	columns []string
	rows    []Row
}

// New creates a dataset with the given column order. The slice is copied.
func New(columns []string) *Dataset {
	return &Dataset{columns: append([]string(nil), columns...)}
}

// Columns returns the column names in dataset order.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// HasColumn reports whether the dataset declares the column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.columns {
		if c == name {
			return true
		}
	}
	return false
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Row returns the i-th row. The returned map is shared — callers must
// not modify it.
func (d *Dataset) Row(i int) Row {
	return d.rows[i]
}

// Append adds a row. The row map is taken over by the dataset.
func (d *Dataset) Append(r Row) {
	d.rows = append(d.rows, r)
}

// EachBatch walks the rows in order as fixed-size batches without
// materializing copies, so large datasets can be evaluated chunk by
// chunk. start is the dataset index of the first row in the batch.
// A non-positive size yields a single batch of all rows.
func (d *Dataset) EachBatch(size int, fn func(start int, rows []Row) error) error {
	if size <= 0 {
		size = len(d.rows)
		if size == 0 {
			return nil
		}
	}
	for start := 0; start < len(d.rows); start += size {
		end := start + size
		if end > len(d.rows) {
			end = len(d.rows)
		}
		if err := fn(start, d.rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Filter returns a new dataset holding the rows for which keep returns
// true. Row maps are shared with the receiver; the receiver itself is
// untouched.
func (d *Dataset) Filter(keep func(i int, r Row) bool) *Dataset {
	out := New(d.columns)
	for i, r := range d.rows {
		if keep(i, r) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Clone returns a deep copy (independent rows and column slice).
func (d *Dataset) Clone() *Dataset {
	out := New(d.columns)
	out.rows = make([]Row, len(d.rows))
	for i, r := range d.rows {
		out.rows[i] = r.Clone()
	}
	return out
}
