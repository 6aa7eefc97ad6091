package inference

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mltemplate/dataset"
	"github.com/YuminosukeSato/mltemplate/features"
	"github.com/YuminosukeSato/mltemplate/models"
	"github.com/YuminosukeSato/mltemplate/pipeline"
	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
	"github.com/YuminosukeSato/mltemplate/preprocessing"
	"github.com/YuminosukeSato/mltemplate/validation"
)

var featureCfg = features.Config{
	Target:              "target",
	NumericFeatures:     []string{"age", "chol"},
	CategoricalFeatures: []string{"sex"},
}

// fixture trains a small pipeline and writes the three startup resources into a
// temporary directory.
func fixture(t *testing.T) Config {
	t.Helper()
	log.SetProvider(log.NewNopProvider())

	var b strings.Builder
	b.WriteString("age,chol,sex,target\n")
	for i := 0; i < 80; i++ {
		age := 30 + i%40
		label := 0
		if age >= 50 {
			label = 1
		}
		fmt.Fprintf(&b, "%d,%d,%s,%d\n", age, 180+(17*i)%90, []string{"m", "f"}[i%2], label)
	}
	frame, err := dataset.ReadCSV(strings.NewReader(b.String()), nil, dataset.HeaderRow(0))
	require.NoError(t, err)
	y, err := features.ExtractTarget(frame, featureCfg.Target)
	require.NoError(t, err)
	X, err := features.ExtractFeatureColumns(frame, featureCfg.Columns())
	require.NoError(t, err)

	pre, err := preprocessing.NewPreprocessor(featureCfg)
	require.NoError(t, err)
	p := pipeline.New(pre, models.EstimatorConfig{
		ModelType:   models.RandomForest,
		ModelParams: map[string]interface{}{"n_estimators": 10},
		RandomState: 42,
		PosLabel:    "1",
	})
	require.NoError(t, p.Fit(X, y))

	dir := t.TempDir()
	cfg := Config{
		ArtifactPath:     filepath.Join(dir, "model.bin"),
		TableSchemaPath:  filepath.Join(dir, "schema.json"),
		FeatureStatsPath: filepath.Join(dir, "stats.json"),
		Host:             "127.0.0.1",
		Port:             5000,
		LogLevel:         "info",
		OutlierSigma:     3,
		MetricsEnabled:   true,
	}
	require.NoError(t, p.Save(cfg.ArtifactPath))
	require.NoError(t, validation.WriteSchema(cfg.TableSchemaPath, features.Schema(featureCfg)))
	stats, err := features.ComputeStats(X, featureCfg.NumericFeatures)
	require.NoError(t, err)
	require.NoError(t, validation.WriteStats(cfg.FeatureStatsPath, stats))
	return cfg
}

type predictResult struct {
	Status int `json:"status"`
	Body   *struct {
		Prediction []float64 `json:"prediction"`
	} `json:"body"`
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func predict(t *testing.T, srv *Server, payload string) predictResult {
	t.Helper()
	target := "/predict"
	if payload != "" {
		target += "?payload=" + url.QueryEscape(payload)
	}
	rec := get(t, srv, target)
	require.Equal(t, http.StatusOK, rec.Code)
	var out predictResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestService_StartHealthy(t *testing.T) {
	svc := NewService(fixture(t))
	assert.Equal(t, StateUninitialized, svc.State())

	require.NoError(t, svc.Start())
	assert.Equal(t, StateHealthy, svc.State())

	err := svc.Start()
	require.Error(t, err)
	assert.Equal(t, StateHealthy, svc.State())

	rec := get(t, NewServer(svc), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestService_StartFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, c *Config)
	}{
		{"missing artifact", func(t *testing.T, c *Config) { c.ArtifactPath += ".missing" }},
		{"corrupt artifact", func(t *testing.T, c *Config) {
			require.NoError(t, os.WriteFile(c.ArtifactPath, []byte("not an artifact"), 0o644))
		}},
		{"missing schema", func(t *testing.T, c *Config) { c.TableSchemaPath += ".missing" }},
		{"invalid stats", func(t *testing.T, c *Config) {
			require.NoError(t, os.WriteFile(c.FeatureStatsPath, []byte(`{"mean":[1],"std":[1,2]}`), 0o644))
		}},
		{"stats do not match schema", func(t *testing.T, c *Config) {
			require.NoError(t, os.WriteFile(c.FeatureStatsPath, []byte(`{"mean":[1],"std":[1]}`), 0o644))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fixture(t)
			tt.mutate(t, &cfg)
			svc := NewService(cfg)
			err := svc.Start()
			require.Error(t, err)
			assert.True(t, errors.IsData(err), "got %v", err)
			assert.Equal(t, StateFailed, svc.State())

			srv := NewServer(svc)
			assert.JSONEq(t, `{"status":400}`, get(t, srv, "/health").Body.String())
			assert.JSONEq(t, `{"status":400,"body":null}`,
				get(t, srv, "/predict?payload="+url.QueryEscape(`[{"age":40,"chol":200,"sex":"m"}]`)).Body.String())

			require.Error(t, svc.Start())
			assert.Equal(t, StateFailed, svc.State())
		})
	}
}

func TestServer_Predict(t *testing.T) {
	svc := NewService(fixture(t))
	require.NoError(t, svc.Start())
	srv := NewServer(svc)

	out := predict(t, srv, `[{"age":65,"chol":200,"sex":"m"},{"age":31,"chol":250,"sex":"f"}]`)
	assert.Equal(t, 200, out.Status)
	require.NotNil(t, out.Body)
	assert.Equal(t, []float64{1, 0}, out.Body.Prediction)
}

func TestServer_PredictNull(t *testing.T) {
	svc := NewService(fixture(t))
	require.NoError(t, svc.Start())
	srv := NewServer(svc)

	tests := []struct {
		name    string
		payload string
	}{
		{"absent", ""},
		{"malformed", `[{"age":`},
		{"not an array", `{"age":40}`},
		{"empty array", `[]`},
		{"extra column", `[{"age":40,"chol":200,"sex":"m","bp":120}]`},
		{"missing column", `[{"age":40,"sex":"m"}]`},
		{"reordered columns", `[{"chol":200,"age":40,"sex":"m"}]`},
		{"categorical as number", `[{"age":40,"chol":200,"sex":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/predict"
			if tt.payload != "" {
				target += "?payload=" + url.QueryEscape(tt.payload)
			}
			rec := get(t, srv, target)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"status":200,"body":{"prediction":null}}`, rec.Body.String())
		})
	}
}

func TestServer_OutliersAreSoft(t *testing.T) {
	svc := NewService(fixture(t))
	require.NoError(t, svc.Start())
	srv := NewServer(svc)

	out := predict(t, srv, `[{"age":500,"chol":200,"sex":"m"}]`)
	require.NotNil(t, out.Body)
	assert.Len(t, out.Body.Prediction, 1)

	body, err := io.ReadAll(get(t, srv, "/metrics").Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mltemplate_inference_outlier_payloads_total 1")
	assert.Contains(t, string(body), `mltemplate_inference_predictions_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "mltemplate_inference_state 2")
}

func TestServer_MetricsDisabledAndNotFound(t *testing.T) {
	cfg := fixture(t)
	cfg.MetricsEnabled = false
	srv := NewServer(NewService(cfg))

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/metrics").Code)
	rec := get(t, srv, "/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found")
}

func TestLoadConfig(t *testing.T) {
	for _, k := range []string{"ARTIFACT", "TABLE_SCHEMA", "FEATURE_STATS", "HOST", "PORT",
		"LOG_LEVEL", "LOG_ON", "LOG_FORMAT", "OUTLIER_SIGMA", "METRICS_ENABLED"} {
		t.Setenv(k, "")
	}

	t.Run("env file and environment", func(t *testing.T) {
		env := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(env, []byte(
			"ARTIFACT=out/model.bin\nTABLE_SCHEMA=out/schema.json\nFEATURE_STATS=out/stats.json\nPORT=8080\n"), 0o644))
		t.Setenv("PORT", "9090")
		t.Setenv("OUTLIER_SIGMA", "2.5")

		cfg, err := LoadConfig(env)
		require.NoError(t, err)
		assert.Equal(t, "out/model.bin", cfg.ArtifactPath)
		assert.Equal(t, 9090, cfg.Port)
		assert.Equal(t, 2.5, cfg.OutlierSigma)
		assert.Equal(t, "127.0.0.1", cfg.Host)
		assert.True(t, cfg.LogOn)
		assert.True(t, cfg.MetricsEnabled)
	})

	t.Run("missing artifact", func(t *testing.T) {
		_, err := LoadConfig("")
		require.Error(t, err)
		assert.True(t, errors.IsConfig(err))
	})

	t.Run("missing env file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.env"))
		require.Error(t, err)
		assert.True(t, errors.IsData(err))
	})
}

func TestConfig_Validate(t *testing.T) {
	base := Config{ArtifactPath: "a", TableSchemaPath: "s", FeatureStatsPath: "f", Port: 5000, OutlierSigma: 3, LogLevel: "info"}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"sigma", func(c *Config) { c.OutlierSigma = 0 }},
		{"level", func(c *Config) { c.LogLevel = "loud" }},
		{"schema", func(c *Config) { c.TableSchemaPath = "" }},
		{"stats", func(c *Config) { c.FeatureStatsPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.True(t, errors.IsConfig(cfg.Validate()))
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "healthy", StateHealthy.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(9).String())
}
