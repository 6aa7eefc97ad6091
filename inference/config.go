// Package inference serves a trained pipeline over HTTP.
//
// The service loads the artifact, the table schema and the feature statistics once at
// startup. After that every request is validated and predicted against those read-only
// resources.
package inference

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

// Config is read once from the environment at process start.
type Config struct {
	ArtifactPath     string  `mapstructure:"artifact"`
	TableSchemaPath  string  `mapstructure:"table_schema"`
	FeatureStatsPath string  `mapstructure:"feature_stats"`
	Host             string  `mapstructure:"host"`
	Port             int     `mapstructure:"port"`
	LogLevel         string  `mapstructure:"log_level"`
	LogOn            bool    `mapstructure:"log_on"`
	LogFormat        string  `mapstructure:"log_format"`
	OutlierSigma     float64 `mapstructure:"outlier_sigma"`
	MetricsEnabled   bool    `mapstructure:"metrics_enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("artifact", "")
	v.SetDefault("table_schema", "")
	v.SetDefault("feature_stats", "")
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 5000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_on", true)
	v.SetDefault("log_format", "json")
	v.SetDefault("outlier_sigma", 3.0)
	v.SetDefault("metrics_enabled", true)
}

// LoadConfig reads the service configuration from environment variables (ARTIFACT,
// TABLE_SCHEMA, FEATURE_STATS, HOST, PORT, LOG_LEVEL, LOG_ON, LOG_FORMAT,
// OUTLIER_SIGMA, METRICS_ENABLED). envFile optionally names a dotenv file whose
// values the environment overrides.
func LoadConfig(envFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err != nil {
			if os.IsNotExist(err) {
				return Config{}, errors.NewNotFoundError("env file", envFile)
			}
			return Config{}, errors.WrapIO(err, "stat env file")
		}
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.NewInvalidConfigError("env_file", envFile, err.Error())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.NewInvalidConfigError("environment", nil, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that must be right before the service starts.
func (c Config) Validate() error {
	if c.ArtifactPath == "" {
		return errors.NewMissingConfigError("ARTIFACT", "path to the model artifact is required")
	}
	if c.TableSchemaPath == "" {
		return errors.NewMissingConfigError("TABLE_SCHEMA", "path to the table schema is required")
	}
	if c.FeatureStatsPath == "" {
		return errors.NewMissingConfigError("FEATURE_STATS", "path to the feature statistics is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.NewConfigError("PORT", c.Port, []string{"1..65535"})
	}
	if !(c.OutlierSigma > 0) {
		return errors.NewConfigError("OUTLIER_SIGMA", c.OutlierSigma, []string{"> 0"})
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewConfigError("LOG_LEVEL", c.LogLevel, []string{"debug", "info", "warn", "error"})
	}
	return nil
}

// ConfigureLogging installs the process logger described by c.
func (c Config) ConfigureLogging() error {
	_, err := log.Configure(log.Options{Enabled: c.LogOn, Level: c.LogLevel, Format: c.LogFormat})
	if err != nil {
		return errors.NewInvalidConfigError("LOG_FORMAT", c.LogFormat, err.Error())
	}
	return nil
}
