// Package config loads the control-plane configuration from defaults, an
// optional YAML file, BURROW_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. BURROW_HEALTH_RETRY_DELAY
const EnvPrefix = "BURROW"

// Config holds the control-plane configuration
type Config struct {
	DataDir     string        `mapstructure:"data_dir" validate:"required"`
	MetricsAddr string        `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	Log         LogConfig     `mapstructure:"log"`
	Sealing     SealingConfig `mapstructure:"sealing"`
	Health      HealthConfig  `mapstructure:"health"`
}

// LogConfig configures pkg/log
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// SealingConfig configures encryption of provider instance configs
type SealingConfig struct {
	// Passphrase derives the sealing key together with the salt in DataDir
	Passphrase string `mapstructure:"passphrase" validate:"required,min=8"`
}

// HealthConfig tunes health checking
type HealthConfig struct {
	ServiceHealthHour int           `mapstructure:"service_health_hour" validate:"gte=0,lte=23"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" validate:"gte=1s"`
	RescanInterval    time.Duration `mapstructure:"rescan_interval" validate:"gte=10s"`
	CheckTimeout      time.Duration `mapstructure:"check_timeout" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"data-dir":     "data_dir",
	"metrics-addr": "metrics_addr",
	"log-level":    "log.level",
	"log-json":     "log.json",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "/var/lib/burrow")
	v.SetDefault("metrics_addr", "127.0.0.1:9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("sealing.passphrase", "")
	v.SetDefault("health.service_health_hour", 3)
	v.SetDefault("health.retry_delay", "15m")
	v.SetDefault("health.rescan_interval", "1h")
	v.SetDefault("health.check_timeout", "5m")
}

// Load reads the configuration. configFile may be empty; flags may be nil.
// Only flags the user actually set override the file and environment.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every field constraint
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalid, "invalid configuration")
	}
	return nil
}
