package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// Read loads the dataset described by cfg. A missing file is a NotFoundError; a config
// with neither column names nor a header row is a ConfigError. Files ending in .xlsx
// are read with excelize, everything else as CSV.
func Read(cfg Config) (*Frame, error) {
	logger := log.GetLoggerWithName("dataset").With(log.DatasetPathKey, cfg.Path())
	path := cfg.Path()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logger.Error("Dataset file not found")
			return nil, errors.NewNotFoundError("dataset", path)
		}
		return nil, errors.WrapIO(err, "stat dataset file")
	}
	if len(cfg.ColumnNames) == 0 && cfg.Header == nil {
		logger.Error("Either set of column names or a header row should be provided")
		return nil, errors.NewMissingConfigError("dataset.column_names", "either column names or a header row must be provided")
	}

	logger.Debug("Reading dataset")
	var (
		records [][]string
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		records, err = readXLSX(path, cfg.Sheet)
	} else {
		records, err = readCSVFile(path)
	}
	if err != nil {
		return nil, err
	}

	frame, err := FromRecords(records, cfg.ColumnNames, cfg.Header)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded dataset", log.SamplesKey, frame.Rows(), log.FeaturesKey, frame.NCols())
	return frame, nil
}

// ReadCSV parses CSV from r with the same header rules as Read.
func ReadCSV(r io.Reader, names []string, header *int) (*Frame, error) {
	records, err := parseCSV(r)
	if err != nil {
		return nil, err
	}
	return FromRecords(records, names, header)
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO(err, "open dataset file")
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.NewValueError("ReadCSV", err.Error())
	}
	return records, nil
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.NewArtifactError(path, "cannot open workbook", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.NewValueError("ReadXLSX", "sheet "+strconv.Quote(sheet)+": "+err.Error())
	}
	return rows, nil
}

// FromRecords builds a Frame from raw string records. When header is set, the rows
// before it are skipped and row header supplies the names; names, when given, take
// precedence over the header row. Short rows are padded with missing cells.
func FromRecords(records [][]string, names []string, header *int) (*Frame, error) {
	if len(names) == 0 && header == nil {
		return nil, errors.NewMissingConfigError("dataset.column_names", "either column names or a header row must be provided")
	}

	data := records
	if header != nil {
		h := *header
		if h < 0 {
			return nil, errors.NewConfigError("dataset.header", h, []string{">= 0"})
		}
		if h >= len(records) {
			return nil, errors.NewValueError("FromRecords", "header row "+strconv.Itoa(h)+" is beyond the end of the data")
		}
		if len(names) == 0 {
			names = make([]string, len(records[h]))
			for i, n := range records[h] {
				names[i] = strings.TrimSpace(n)
			}
		}
		data = records[h+1:]
	}

	// Trailing blank lines
	for len(data) > 0 && isBlank(data[len(data)-1]) {
		data = data[:len(data)-1]
	}

	width := len(names)
	cells := make([][]string, width)
	for j := range cells {
		cells[j] = make([]string, len(data))
	}
	for i, rec := range data {
		if len(rec) > width {
			return nil, errors.NewDimensionError("FromRecords", width, len(rec), 1)
		}
		for j := 0; j < len(rec); j++ {
			cells[j][i] = rec[j]
		}
	}

	cols := make([]*Column, width)
	for j, n := range names {
		cols[j] = inferColumn(n, cells[j])
	}
	return NewFrame(cols...)
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
