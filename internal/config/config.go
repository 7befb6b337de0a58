// Package config loads the controller's YAML configuration file into a
// hagex.Config. It is deliberately a thin, pure value-object supplier: it
// has no knowledge of the hub, the FSM, or the decision engine.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jluzny/hag-ex"
	"github.com/spf13/viper"
)

// envTokenVar is the environment variable that overrides hass_options.access_token.
const envTokenVar = "HASS_TOKEN"

const (
	defaultMaxRetries           = 5
	defaultRetryDelayMS         = 1000
	defaultStateCheckIntervalMS = 600000
	defaultApiAddr              = ":8099"
)

// Load reads the YAML file at path and decodes it into a hagex.Config,
// applying field defaults and the HASS_TOKEN environment override.
// path may be a full file path or a directory containing config.yaml/.yml.
func Load(path string) (*hagex.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	} else if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(path)
		v.SetConfigName("config")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading config: %s", hagex.ErrConfigInvalid, err)
	}

	if err := v.BindEnv("hass_options.access_token", envTokenVar); err != nil {
		return nil, fmt.Errorf("%w: binding %s: %s", hagex.ErrConfigInvalid, envTokenVar, err)
	}

	var cfg hagex.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %s", hagex.ErrConfigInvalid, err)
	}

	cfg.Hvac.SystemMode = hagex.ParseSystemMode(strings.ToLower(string(cfg.Hvac.SystemMode)))

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hass_options.max_retries", defaultMaxRetries)
	v.SetDefault("hass_options.retry_delay_ms", defaultRetryDelayMS)
	v.SetDefault("hass_options.state_check_interval_ms", defaultStateCheckIntervalMS)
	v.SetDefault("api_options.addr", defaultApiAddr)
}

// validate rejects configurations the core cannot safely act on.
func validate(cfg *hagex.Config) error {
	if cfg.Hub.WSURL == "" {
		return fmt.Errorf("%w: hass_options.ws_url is required", hagex.ErrConfigInvalid)
	}
	if cfg.Hub.AccessToken == "" {
		return fmt.Errorf("%w: hass_options.access_token is required (or set %s)", hagex.ErrConfigInvalid, envTokenVar)
	}
	if cfg.Hvac.TempSensor == "" {
		return fmt.Errorf("%w: hvac_options.temp_sensor is required", hagex.ErrConfigInvalid)
	}
	if cfg.Hvac.OutdoorSensor == "" {
		return fmt.Errorf("%w: hvac_options.outdoor_sensor is required", hagex.ErrConfigInvalid)
	}
	for _, e := range cfg.Hvac.Entities {
		if e.EntityID == "" {
			return fmt.Errorf("%w: hvac_options.entities: entity_id is required", hagex.ErrConfigInvalid)
		}
	}
	if cfg.Api.Enabled && cfg.Api.ControlSecret == "" {
		return fmt.Errorf("%w: api_options.control_secret is required when api_options.enabled is true", hagex.ErrConfigInvalid)
	}
	return nil
}
