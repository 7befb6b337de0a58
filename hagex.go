// Package hagex holds the domain value types shared by every internal
// package of the HVAC controller: the immutable configuration loaded at
// startup, the runtime conditions snapshot, and the finite-state machine's
// states and events.
package hagex

import "time"

// SystemMode selects which HVAC modes the controller is allowed to drive.
type SystemMode string

const (
	ModeHeatOnly SystemMode = "heat_only"
	ModeCoolOnly SystemMode = "cool_only"
	ModeAuto     SystemMode = "auto"
	ModeOff      SystemMode = "off"
)

// ParseSystemMode converts a config string to a SystemMode, falling back to
// ModeAuto for anything unrecognized.
func ParseSystemMode(s string) SystemMode {
	switch SystemMode(s) {
	case ModeHeatOnly, ModeCoolOnly, ModeAuto, ModeOff:
		return SystemMode(s)
	default:
		return ModeAuto
	}
}

// HubOptions configures the connection to the home-automation hub.
type HubOptions struct {
	WSURL                string `mapstructure:"ws_url"`
	RESTURL              string `mapstructure:"rest_url"`
	AccessToken          string `mapstructure:"access_token"`
	MaxRetries           int    `mapstructure:"max_retries"`
	RetryDelayMS         int    `mapstructure:"retry_delay_ms"`
	StateCheckIntervalMS int    `mapstructure:"state_check_interval_ms"`
}

// Thresholds bounds indoor/outdoor temperature, in degrees Celsius.
type Thresholds struct {
	IndoorMin  float64 `mapstructure:"indoor_min"`
	IndoorMax  float64 `mapstructure:"indoor_max"`
	OutdoorMin float64 `mapstructure:"outdoor_min"`
	OutdoorMax float64 `mapstructure:"outdoor_max"`
}

// DefrostParams gates the defrost sub-protocol.
type DefrostParams struct {
	TemperatureThresholdC float64 `mapstructure:"temperature_threshold_c"`
	PeriodSeconds         int     `mapstructure:"period_seconds"`
	DurationSeconds       int     `mapstructure:"duration_seconds"`
}

// HeatingParams configures the heating mode.
type HeatingParams struct {
	SetpointC  float64       `mapstructure:"setpoint_c"`
	PresetMode string        `mapstructure:"preset_mode"`
	Thresholds Thresholds    `mapstructure:"thresholds"`
	Defrost    DefrostParams `mapstructure:"defrost"`
}

// CoolingParams configures the cooling mode.
type CoolingParams struct {
	SetpointC  float64    `mapstructure:"setpoint_c"`
	PresetMode string     `mapstructure:"preset_mode"`
	Thresholds Thresholds `mapstructure:"thresholds"`
}

// ActiveHours is the wall-clock window the controller may heat or cool in.
// Start differs between weekends (Start) and weekdays (StartWeekday).
type ActiveHours struct {
	Start        int `mapstructure:"start"`
	StartWeekday int `mapstructure:"start_weekday"`
	EndHour      int `mapstructure:"end_hour"`
}

// Entity is one hub-controlled climate device.
type Entity struct {
	EntityID       string `mapstructure:"entity_id"`
	Enabled        bool   `mapstructure:"enabled"`
	DefrostCapable bool   `mapstructure:"defrost_capable"`
}

// HvacOptions configures the controller's view of the HVAC system.
type HvacOptions struct {
	TempSensor    string        `mapstructure:"temp_sensor"`
	OutdoorSensor string        `mapstructure:"outdoor_sensor"`
	SystemMode    SystemMode    `mapstructure:"system_mode"`
	Entities      []Entity      `mapstructure:"entities"`
	Heating       HeatingParams `mapstructure:"heating"`
	Cooling       CoolingParams `mapstructure:"cooling"`
	ActiveHours   ActiveHours   `mapstructure:"active_hours"`
}

// ApiOptions configures the optional local control/status HTTP surface.
// Disabled (Enabled=false) leaves the controller running headless.
type ApiOptions struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	ControlSecret string `mapstructure:"control_secret"`
}

// Config is the immutable, process-wide configuration, born at startup and
// never mutated.
type Config struct {
	Hub  HubOptions  `mapstructure:"hass_options"`
	Hvac HvacOptions `mapstructure:"hvac_options"`
	Api  ApiOptions  `mapstructure:"api_options"`
}

// EnabledEntities returns the subset of configured entities with Enabled set.
func (c *Config) EnabledEntities() []Entity {
	out := make([]Entity, 0, len(c.Hvac.Entities))
	for _, e := range c.Hvac.Entities {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// DefrostCapableEntities returns the subset of enabled entities that can run
// a defrost cycle.
func (c *Config) DefrostCapableEntities() []Entity {
	out := make([]Entity, 0, len(c.Hvac.Entities))
	for _, e := range c.Hvac.Entities {
		if e.Enabled && e.DefrostCapable {
			out = append(out, e)
		}
	}
	return out
}

// Conditions is the read-only snapshot of indoor/outdoor temperature and
// wall-clock schedule the Decision Engine consults on each tick. Indoor and
// outdoor readings are optional: a nil pointer means "no recent reading".
type Conditions struct {
	IndoorC   *float64
	OutdoorC  *float64
	Hour      int
	IsWeekday bool
}

// WithIndoor returns a copy of c with IndoorC set to v.
func (c Conditions) WithIndoor(v float64) Conditions {
	c.IndoorC = &v
	return c
}

// WithOutdoor returns a copy of c with OutdoorC set to v.
func (c Conditions) WithOutdoor(v float64) Conditions {
	c.OutdoorC = &v
	return c
}

// ConditionsDelta is produced by the Sensor Gateway from a state_changed
// event on the configured indoor sensor.
type ConditionsDelta struct {
	IndoorC   float64
	Hour      int
	IsWeekday bool
}

// FsmState is one of the five states the controller can be in.
type FsmState string

const (
	StateInitial FsmState = "initial"
	StateIdle    FsmState = "idle"
	StateHeating FsmState = "heating"
	StateCooling FsmState = "cooling"
	StateDefrost FsmState = "defrost"
	StateStopped FsmState = "stopped"
)

// FsmEvent drives a transition between FsmStates.
type FsmEvent string

const (
	EventInitialize      FsmEvent = "initialize"
	EventStartHeating    FsmEvent = "start_heating"
	EventStopHeating     FsmEvent = "stop_heating"
	EventStartCooling    FsmEvent = "start_cooling"
	EventStopCooling     FsmEvent = "stop_cooling"
	EventStartDefrost    FsmEvent = "start_defrost"
	EventCompleteDefrost FsmEvent = "complete_defrost"
	EventResumeHeating   FsmEvent = "resume_heating"
	EventShutdown        FsmEvent = "shutdown"
)

// EntityState is a hub entity's scalar state, as returned by get_states.
type EntityState struct {
	EntityID    string
	State       string
	Attributes  map[string]any
	LastChanged time.Time
	LastUpdated time.Time
}

// Status is the plain status record the Controller exposes.
type Status struct {
	State          FsmState `json:"state"`
	Connected      bool     `json:"connected"`
	EntityCount    int      `json:"entity_count"`
	ConfiguredTemp string   `json:"temp_sensor"`
}
