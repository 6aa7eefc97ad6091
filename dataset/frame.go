package dataset

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// Kind is the inferred type of a column.
type Kind int

const (
	// Numeric columns hold float64 values, NaN marks a missing cell.
	Numeric Kind = iota
	// Categorical columns hold strings, "" marks a missing cell.
	Categorical
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

// Column is a named, typed column. Exactly one of Floats and Strings is populated.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Floats)
	}
	return len(c.Strings)
}

// IsMissing reports whether row i is missing.
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Numeric {
		return math.IsNaN(c.Floats[i])
	}
	return c.Strings[i] == ""
}

// StringAt renders row i as a category label. Missing cells are "".
func (c *Column) StringAt(i int) string {
	if c.Kind == Categorical {
		return c.Strings[i]
	}
	v := c.Floats[i]
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Numeric {
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
		}
		return out
	}
	out.Strings = make([]string, len(rows))
	for i, r := range rows {
		out.Strings[i] = c.Strings[r]
	}
	return out
}

// Frame is an ordered collection of equally long columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// NewFrame builds a Frame. Column names must be unique and all columns equally long.
func NewFrame(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, dup := f.index[c.Name]; dup {
			return nil, errors.NewValueError("NewFrame", "duplicate column "+strconv.Quote(c.Name))
		}
		if i == 0 {
			f.rows = c.Len()
		} else if c.Len() != f.rows {
			return nil, errors.NewDimensionError("NewFrame", f.rows, c.Len(), 0)
		}
		f.index[c.Name] = i
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// Rows returns the number of rows.
func (f *Frame) Rows() int { return f.rows }

// NCols returns the number of columns.
func (f *Frame) NCols() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// NamesOf returns the names of the columns of the given kind, in frame order.
func (f *Frame) NamesOf(kind Kind) []string {
	var names []string
	for _, c := range f.cols {
		if c.Kind == kind {
			names = append(names, c.Name)
		}
	}
	return names
}

// Column looks a column up by name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// Columns returns the columns in order. The slice must not be modified.
func (f *Frame) Columns() []*Column { return f.cols }

// Missing returns the names from names that are absent from the frame.
func (f *Frame) Missing(names []string) []string {
	var missing []string
	for _, n := range names {
		if _, ok := f.index[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Select returns a frame with the named columns in the given order. Every absent
// column is reported in a single MissingColumnError.
func (f *Frame) Select(names []string) (*Frame, error) {
	if missing := f.Missing(names); len(missing) > 0 {
		return nil, errors.NewMissingColumnError(missing)
	}
	cols := make([]*Column, len(names))
	for i, n := range names {
		cols[i] = f.cols[f.index[n]]
	}
	out, err := NewFrame(cols...)
	if err != nil {
		return nil, err
	}
	out.rows = f.rows
	return out, nil
}

// Drop returns a frame without the named columns. Dropping an absent column is an error.
func (f *Frame) Drop(names []string) (*Frame, error) {
	if len(names) == 0 {
		return f, nil
	}
	if missing := f.Missing(names); len(missing) > 0 {
		return nil, errors.NewMissingColumnError(missing)
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []string
	for _, c := range f.cols {
		if !drop[c.Name] {
			keep = append(keep, c.Name)
		}
	}
	return f.Select(keep)
}

// Take returns a frame holding the given rows in the given order.
func (f *Frame) Take(rows []int) *Frame {
	out := &Frame{index: make(map[string]int, len(f.cols)), rows: len(rows)}
	for i, c := range f.cols {
		out.cols = append(out.cols, c.take(rows))
		out.index[c.Name] = i
	}
	return out
}

// Numeric copies the named columns into a dense matrix. Categorical columns are parsed
// as numbers; a cell that does not parse is an error.
func (f *Frame) Numeric(names []string) (*mat.Dense, error) {
	if missing := f.Missing(names); len(missing) > 0 {
		return nil, errors.NewMissingColumnError(missing)
	}
	if f.rows == 0 || len(names) == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(f.rows, len(names), nil)
	for j, n := range names {
		c := f.cols[f.index[n]]
		for i := 0; i < f.rows; i++ {
			if c.Kind == Numeric {
				out.Set(i, j, c.Floats[i])
				continue
			}
			v, ok := parseCell(c.Strings[i])
			if !ok {
				return nil, errors.NewValueError("Frame.Numeric",
					"column "+strconv.Quote(n)+" holds non-numeric value "+strconv.Quote(c.Strings[i]))
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// Strings returns the named columns row-major as category labels.
func (f *Frame) Strings(names []string) ([][]string, error) {
	if missing := f.Missing(names); len(missing) > 0 {
		return nil, errors.NewMissingColumnError(missing)
	}
	cols := make([]*Column, len(names))
	for j, n := range names {
		cols[j] = f.cols[f.index[n]]
	}
	out := make([][]string, f.rows)
	for i := range out {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = c.StringAt(i)
		}
		out[i] = row
	}
	return out, nil
}

// naTokens are the cell values read as missing, matching the usual CSV conventions.
var naTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "n/a": true, "NaN": true, "nan": true,
	"-NaN": true, "-nan": true, "null": true, "NULL": true, "None": true, "#N/A": true, "<NA>": true,
}

// isNA reports whether a raw cell is a missing-value token.
func isNA(s string) bool {
	return naTokens[strings.TrimSpace(s)]
}

// parseCell parses a raw cell as a float. Missing tokens parse as NaN.
func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if naTokens[s] {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// inferColumn turns raw cells into a typed column. The column is numeric when every
// non-missing cell parses as a number and at least one cell is present.
func inferColumn(name string, cells []string) *Column {
	floats := make([]float64, len(cells))
	numeric := false
	for i, s := range cells {
		v, ok := parseCell(s)
		if !ok {
			numeric = false
			floats = nil
			break
		}
		if !math.IsNaN(v) {
			numeric = true
		}
		floats[i] = v
	}
	if numeric {
		return &Column{Name: name, Kind: Numeric, Floats: floats}
	}

	strs := make([]string, len(cells))
	for i, s := range cells {
		if isNA(s) {
			continue
		}
		strs[i] = strings.TrimSpace(s)
	}
	return &Column{Name: name, Kind: Categorical, Strings: strs}
}
