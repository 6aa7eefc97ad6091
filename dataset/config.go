// Package dataset fetches tabular datasets and loads them into an in-memory Frame.
package dataset

import (
	"path/filepath"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

// Config describes where a dataset comes from and how to parse it.
// It is built once from the training configuration and never mutated.
type Config struct {
	// SourceURL is fetched when the local file is absent (or Download is set).
	SourceURL string `yaml:"source_url"`
	Dir       string `yaml:"dataset_dir"`
	Filename  string `yaml:"dataset_filename"`

	// ColumnNames overrides the names read from the header row.
	ColumnNames []string `yaml:"column_names"`
	// Header is the zero-based row index holding column names. Rows above it are skipped.
	Header *int `yaml:"header"`

	// Download forces a fresh copy even when the file is cached.
	Download bool `yaml:"download"`

	// Sheet selects the worksheet of an .xlsx source. Defaults to the first sheet.
	Sheet string `yaml:"sheet"`
}

// Path returns the local path of the dataset file.
func (c Config) Path() string {
	if c.Dir == "" {
		return c.Filename
	}
	return filepath.Join(c.Dir, c.Filename)
}

// Validate checks the fields that must be set before any I/O happens.
func (c Config) Validate() error {
	if c.Filename == "" {
		return errors.NewMissingConfigError("dataset.dataset_filename", "a dataset filename is required")
	}
	if len(c.ColumnNames) == 0 && c.Header == nil {
		return errors.NewMissingConfigError("dataset.column_names", "either column names or a header row must be provided")
	}
	if c.Header != nil && *c.Header < 0 {
		return errors.NewConfigError("dataset.header", *c.Header, []string{">= 0"})
	}
	return nil
}

// HeaderRow is a helper for building a Config in code.
func HeaderRow(i int) *int {
	return &i
}
