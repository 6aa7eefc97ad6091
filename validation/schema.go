// Package validation guards the inference endpoint: it loads the tabular schema and
// the training-time feature statistics, and checks incoming tables against them.
package validation

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// TabularSchema is the declared column order of an input table and its partition into
// numeric and categorical columns.
type TabularSchema struct {
	Columns            []string `json:"columns"`
	NumericColumns     []string `json:"numeric_columns"`
	CategoricalColumns []string `json:"categorical_columns"`
}

// Validate checks that the partitions are disjoint and together cover Columns exactly.
func (s TabularSchema) Validate() error {
	all := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if all[c] {
			return errors.NewValueError("TabularSchema", "duplicate column "+strconv.Quote(c))
		}
		all[c] = true
	}

	seen := make(map[string]string, len(s.Columns))
	for part, cols := range map[string][]string{"numeric": s.NumericColumns, "categorical": s.CategoricalColumns} {
		for _, c := range cols {
			if !all[c] {
				return errors.NewValueError("TabularSchema", part+" column "+strconv.Quote(c)+" is not listed in columns")
			}
			if other, dup := seen[c]; dup {
				return errors.NewValueError("TabularSchema", "column "+strconv.Quote(c)+" is both "+other+" and "+part)
			}
			seen[c] = part
		}
	}
	if len(seen) != len(all) {
		var orphans []string
		for _, c := range s.Columns {
			if _, ok := seen[c]; !ok {
				orphans = append(orphans, c)
			}
		}
		return errors.NewValueError("TabularSchema", "columns without a numeric/categorical kind: "+strings.Join(orphans, ", "))
	}
	return nil
}

// ReadSchema decodes and validates a schema document.
func ReadSchema(r io.Reader) (*TabularSchema, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapIO(err, "read schema")
	}
	if err := validateDocument(tabularSchemaFile, raw); err != nil {
		return nil, err
	}
	var s TabularSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.NewValueError("ReadSchema", err.Error())
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchema reads the schema file at path.
func LoadSchema(path string) (*TabularSchema, error) {
	logger := log.GetLoggerWithName("validation").With(log.ConfigPathKey, path)
	logger.Debug("Reading tabular schema")

	f, err := openDocument("table schema", path)
	if err != nil {
		logger.Error("Encountered error during schema loading", err)
		return nil, err
	}
	defer f.Close()

	s, err := ReadSchema(f)
	if err != nil {
		logger.Error("Encountered error during schema loading", err)
		return nil, err
	}
	return s, nil
}

// WriteSchema writes s as indented JSON.
func WriteSchema(path string, s TabularSchema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return writeDocument(path, TabularSchema{
		Columns:            nonNil(s.Columns),
		NumericColumns:     nonNil(s.NumericColumns),
		CategoricalColumns: nonNil(s.CategoricalColumns),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func openDocument(what, path string) (*os.File, error) {
	if path == "" {
		return nil, errors.NewMissingConfigError(what, "path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(what, path)
		}
		return nil, errors.WrapIO(err, "open "+what)
	}
	return f, nil
}

func writeDocument(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode "+path)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return errors.WrapIO(err, "write "+path)
	}
	return nil
}
