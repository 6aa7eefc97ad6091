package dataset

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

const sampleCSV = `age,workclass,hours,label
39,State-gov,40,<=50K
50,Self-emp,13,<=50K
38,Private,NA,>50K
53,,40,>50K
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRead_RequiresNamesOrHeader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.csv", sampleCSV)

	_, err := Read(Config{Dir: dir, Filename: "data.csv"})
	if !errors.IsConfig(err) {
		t.Fatalf("Read() without names or header = %v, want a config error", err)
	}

	_, err = Read(Config{Dir: dir, Filename: "data.csv", Header: HeaderRow(-1)})
	if !errors.IsConfig(err) {
		t.Fatalf("Read() with a negative header row = %v, want a config error", err)
	}
	_, err = ReadCSV(strings.NewReader("a,b\n1,2\n"), nil, HeaderRow(-1))
	var ce *errors.ConfigError
	if !errors.As(err, &ce) || ce.Field != "dataset.header" {
		t.Fatalf("ReadCSV() with a negative header row = %v, want ConfigError on dataset.header", err)
	}
}

func TestRead_NotFound(t *testing.T) {
	_, err := Read(Config{Dir: t.TempDir(), Filename: "absent.csv", Header: HeaderRow(0)})
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Read() on a missing file = %v, want NotFoundError", err)
	}
}

func TestRead_HeaderAndNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.csv", sampleCSV)
	writeFile(t, dir, "noheader.csv", "1,a\n2,b\n")
	writeFile(t, dir, "preamble.csv", "# exported\nx,y\n1,a\n")

	tests := []struct {
		name      string
		cfg       Config
		wantNames []string
		wantRows  int
	}{
		{
			name:      "header row",
			cfg:       Config{Dir: dir, Filename: "data.csv", Header: HeaderRow(0)},
			wantNames: []string{"age", "workclass", "hours", "label"},
			wantRows:  4,
		},
		{
			name:      "names override header",
			cfg:       Config{Dir: dir, Filename: "data.csv", Header: HeaderRow(0), ColumnNames: []string{"a", "b", "c", "d"}},
			wantNames: []string{"a", "b", "c", "d"},
			wantRows:  4,
		},
		{
			name:      "names without header",
			cfg:       Config{Dir: dir, Filename: "noheader.csv", ColumnNames: []string{"n", "s"}},
			wantNames: []string{"n", "s"},
			wantRows:  2,
		},
		{
			name:      "rows above header skipped",
			cfg:       Config{Dir: dir, Filename: "preamble.csv", Header: HeaderRow(1)},
			wantNames: []string{"x", "y"},
			wantRows:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Read(tt.cfg)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(f.Names(), tt.wantNames) {
				t.Errorf("Names() = %v, want %v", f.Names(), tt.wantNames)
			}
			if f.Rows() != tt.wantRows {
				t.Errorf("Rows() = %d, want %d", f.Rows(), tt.wantRows)
			}
		})
	}
}

func TestRead_TypeInference(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(sampleCSV), nil, HeaderRow(0))
	if err != nil {
		t.Fatal(err)
	}

	if got := f.NamesOf(Numeric); !reflect.DeepEqual(got, []string{"age", "hours"}) {
		t.Errorf("numeric columns = %v", got)
	}
	if got := f.NamesOf(Categorical); !reflect.DeepEqual(got, []string{"workclass", "label"}) {
		t.Errorf("categorical columns = %v", got)
	}

	hours, _ := f.Column("hours")
	if !math.IsNaN(hours.Floats[2]) {
		t.Errorf("NA should read as NaN, got %v", hours.Floats[2])
	}
	wc, _ := f.Column("workclass")
	if !wc.IsMissing(3) {
		t.Error("empty categorical cell should be missing")
	}
}

func TestRead_XLSX(t *testing.T) {
	dir := t.TempDir()
	book := excelize.NewFile()
	rows := [][]interface{}{
		{"x", "color"},
		{1.5, "red"},
		{2.5, "blue"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := book.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	if err := book.SaveAs(filepath.Join(dir, "data.xlsx")); err != nil {
		t.Fatal(err)
	}

	f, err := Read(Config{Dir: dir, Filename: "data.xlsx", Header: HeaderRow(0)})
	if err != nil {
		t.Fatalf("Read(xlsx) error = %v", err)
	}
	if f.Rows() != 2 || !reflect.DeepEqual(f.NamesOf(Numeric), []string{"x"}) {
		t.Errorf("unexpected frame: rows=%d numeric=%v", f.Rows(), f.NamesOf(Numeric))
	}
}

func TestFrame_SelectNamesEveryMissingColumn(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(sampleCSV), nil, HeaderRow(0))
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.Select([]string{"age", "capital_gain", "race"})
	var mc *errors.MissingColumnError
	if !errors.As(err, &mc) {
		t.Fatalf("Select() = %v, want MissingColumnError", err)
	}
	if !reflect.DeepEqual(mc.Columns, []string{"capital_gain", "race"}) {
		t.Errorf("missing columns = %v", mc.Columns)
	}

	sub, err := f.Select([]string{"label", "age"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(sub.Names(), []string{"label", "age"}) {
		t.Errorf("Select() order = %v", sub.Names())
	}

	dropped, err := f.Drop([]string{"workclass"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dropped.Names(), []string{"age", "hours", "label"}) {
		t.Errorf("Drop() = %v", dropped.Names())
	}
}

func TestFrame_TakeAndNumeric(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(sampleCSV), nil, HeaderRow(0))
	if err != nil {
		t.Fatal(err)
	}
	sub := f.Take([]int{3, 0})
	X, err := sub.Numeric([]string{"age"})
	if err != nil {
		t.Fatal(err)
	}
	if X.At(0, 0) != 53 || X.At(1, 0) != 39 {
		t.Errorf("Take() rows = [%v %v], want [53 39]", X.At(0, 0), X.At(1, 0))
	}

	if _, err := f.Numeric([]string{"workclass"}); err == nil {
		t.Error("Numeric() on a text column should fail")
	}

	rows, err := sub.Strings([]string{"age", "workclass"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rows, [][]string{{"53", ""}, {"39", "State-gov"}}) {
		t.Errorf("Strings() = %v", rows)
	}
}

func TestFromJSON(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantErr     bool
		wantNames   []string
		numeric     []string
		categorical []string
		rows        int
	}{
		{
			name:        "keeps key order",
			payload:     `[{"zeta": 1.5, "alpha": "x"}, {"zeta": 2, "alpha": "y"}]`,
			wantNames:   []string{"zeta", "alpha"},
			numeric:     []string{"zeta"},
			categorical: []string{"alpha"},
			rows:        2,
		},
		{
			name:        "null keeps numeric kind",
			payload:     `[{"a": 1}, {"a": null}]`,
			wantNames:   []string{"a"},
			numeric:     []string{"a"},
			rows:        2,
		},
		{
			name:        "mixed values are categorical",
			payload:     `[{"a": 1}, {"a": "two"}]`,
			wantNames:   []string{"a"},
			categorical: []string{"a"},
			rows:        2,
		},
		{
			name:        "late keys are missing in earlier rows",
			payload:     `[{"a": 1}, {"a": 2, "b": "q"}]`,
			wantNames:   []string{"a", "b"},
			numeric:     []string{"a"},
			categorical: []string{"b"},
			rows:        2,
		},
		{name: "string payload", payload: `"{\"a\": 1}"`, wantErr: true},
		{name: "truncated", payload: `[{"a": 1}`, wantErr: true},
		{name: "not objects", payload: `[1, 2]`, wantErr: true},
		{name: "nested", payload: `[{"a": [1]}]`, wantErr: true},
		{name: "trailing data", payload: `[{"a": 1}] [`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FromJSON([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("FromJSON() expected an error")
				}
				if !errors.IsData(err) {
					t.Errorf("FromJSON() error kind = %v, want data", errors.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("FromJSON() error = %v", err)
			}
			if !reflect.DeepEqual(f.Names(), tt.wantNames) {
				t.Errorf("Names() = %v, want %v", f.Names(), tt.wantNames)
			}
			if !reflect.DeepEqual(f.NamesOf(Numeric), tt.numeric) {
				t.Errorf("numeric = %v, want %v", f.NamesOf(Numeric), tt.numeric)
			}
			if !reflect.DeepEqual(f.NamesOf(Categorical), tt.categorical) {
				t.Errorf("categorical = %v, want %v", f.NamesOf(Categorical), tt.categorical)
			}
			if f.Rows() != tt.rows {
				t.Errorf("Rows() = %d, want %d", f.Rows(), tt.rows)
			}
		})
	}
}

func TestFrame_ToJSONRoundTrip(t *testing.T) {
	in := `[{"x":1.5,"c":"a"},{"x":null,"c":null}]`
	f, err := FromJSON([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	out, err := f.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != in {
		t.Errorf("ToJSON() = %s, want %s", out, in)
	}
}

func TestDownload(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/missing.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "adult.csv")

	got, err := Download(ctx, srv.URL+"/adult.csv", target, false)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if got != target {
		t.Errorf("Download() path = %s, want %s", got, target)
	}
	body, _ := os.ReadFile(target)
	if string(body) != sampleCSV {
		t.Errorf("downloaded content mismatch: %q", body)
	}

	// cached copy is reused
	if _, err := Download(ctx, srv.URL+"/adult.csv", target, false); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected 1 request with a cached file, got %d", n)
	}

	// overwrite forces a fetch
	if _, err := Download(ctx, srv.URL+"/adult.csv", target, true); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("expected a second request with overwrite, got %d", n)
	}

	_, err = Download(ctx, srv.URL+"/missing.csv", filepath.Join(dir, "missing.csv"), false)
	if !errors.IsIO(err) {
		t.Errorf("Download() on 404 = %v, want an I/O error", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "missing.csv")); !os.IsNotExist(statErr) {
		t.Error("a failed download must not leave a file behind")
	}
}

func TestCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "raw")
	cfg := Config{SourceURL: srv.URL + "/data.csv", Dir: dir, Filename: "data.csv", Header: HeaderRow(0)}

	path, err := Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f, err := Read(cfg)
	if err != nil {
		t.Fatalf("Read() after Create() error = %v", err)
	}
	if f.Rows() != 4 || path != cfg.Path() {
		t.Errorf("unexpected result: path=%s rows=%d", path, f.Rows())
	}

	_, err = Create(context.Background(), Config{Dir: t.TempDir(), Filename: "absent.csv"})
	if !errors.IsData(err) {
		t.Errorf("Create() without URL on a missing file = %v, want a data error", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok header", Config{Filename: "a.csv", Header: HeaderRow(0)}, false},
		{"ok names", Config{Filename: "a.csv", ColumnNames: []string{"x"}}, false},
		{"no filename", Config{Header: HeaderRow(0)}, true},
		{"no names or header", Config{Filename: "a.csv"}, true},
		{"negative header", Config{Filename: "a.csv", Header: HeaderRow(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsConfig(err) {
				t.Errorf("Validate() error kind = %v, want config", errors.KindOf(err))
			}
		})
	}
}
