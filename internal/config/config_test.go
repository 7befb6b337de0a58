package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jluzny/hag-ex"
)

const sampleYAML = `
hass_options:
  ws_url: ws://hub.local:8123/api/websocket
  rest_url: http://hub.local:8123
  access_token: plain-token
hvac_options:
  temp_sensor: sensor.living_room_temperature
  outdoor_sensor: sensor.outdoor_temperature
  system_mode: auto
  entities:
    - entity_id: climate.living_room
      enabled: true
      defrost_capable: true
    - entity_id: climate.bedroom
      enabled: false
  heating:
    setpoint_c: 21.0
    preset_mode: comfort
    thresholds:
      indoor_min: 19.7
      indoor_max: 24.0
      outdoor_min: -10
      outdoor_max: 15
    defrost:
      temperature_threshold_c: 0.0
      period_seconds: 7200
      duration_seconds: 300
  cooling:
    setpoint_c: 24.0
    preset_mode: eco
    thresholds:
      indoor_min: 20.0
      indoor_max: 26.0
      outdoor_min: 10
      outdoor_max: 40
  active_hours:
    start: 8
    start_weekday: 7
    end_hour: 20
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hub.MaxRetries != defaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", cfg.Hub.MaxRetries, defaultMaxRetries)
	}
	if cfg.Hub.RetryDelayMS != defaultRetryDelayMS {
		t.Errorf("RetryDelayMS = %d, want default %d", cfg.Hub.RetryDelayMS, defaultRetryDelayMS)
	}
	if cfg.Hvac.SystemMode != hagex.ModeAuto {
		t.Errorf("SystemMode = %q, want auto", cfg.Hvac.SystemMode)
	}
	if len(cfg.Hvac.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(cfg.Hvac.Entities))
	}
	if !cfg.Hvac.Entities[0].Enabled || !cfg.Hvac.Entities[0].DefrostCapable {
		t.Errorf("entity 0 should be enabled+defrost_capable: %+v", cfg.Hvac.Entities[0])
	}
	if cfg.Hvac.Entities[1].Enabled {
		t.Errorf("entity 1 is configured disabled: %+v", cfg.Hvac.Entities[1])
	}
	enabled := cfg.EnabledEntities()
	if len(enabled) != 1 || enabled[0].EntityID != "climate.living_room" {
		t.Errorf("EnabledEntities = %+v", enabled)
	}
}

func TestLoad_UnknownSystemModeFallsBackToAuto(t *testing.T) {
	// replace "system_mode: auto" with an unknown value
	body := strings.Replace(sampleYAML, "system_mode: auto", "system_mode: bogus", 1)
	path := writeConfig(t, body)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hvac.SystemMode != hagex.ModeAuto {
		t.Errorf("SystemMode = %q, want fallback to auto", cfg.Hvac.SystemMode)
	}
}

func TestLoad_EnvOverridesAccessToken(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	t.Setenv("HASS_TOKEN", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hub.AccessToken != "from-env" {
		t.Errorf("AccessToken = %q, want override from HASS_TOKEN", cfg.Hub.AccessToken)
	}
}

func TestLoad_ApiDisabledByDefault(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Api.Enabled {
		t.Error("Api.Enabled should default to false")
	}
	if cfg.Api.Addr != defaultApiAddr {
		t.Errorf("Api.Addr = %q, want default %q", cfg.Api.Addr, defaultApiAddr)
	}
}

func TestLoad_ApiEnabledWithoutSecretIsConfigInvalid(t *testing.T) {
	body := sampleYAML + "api_options:\n  enabled: true\n"
	path := writeConfig(t, body)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for api_options.enabled without control_secret")
	}
}

func TestLoad_MissingWSURLIsConfigInvalid(t *testing.T) {
	body := `
hass_options:
  access_token: x
hvac_options:
  temp_sensor: sensor.x
`
	path := writeConfig(t, body)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing ws_url")
	}
}
