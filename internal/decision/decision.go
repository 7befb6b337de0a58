// Package decision implements the pure decision engine: a single function
// from (conditions, config, FSM state, defrost timing) to an optional
// FsmEvent. It has no I/O and no mutable state of its own.
package decision

import (
	"time"

	"github.com/jluzny/hag-ex"
)

// effectiveMode is the resolved operating mode after system_mode=auto
// tie-breaking.
type effectiveMode string

const (
	modeHeat effectiveMode = "heat_only"
	modeCool effectiveMode = "cool_only"
	modeOff  effectiveMode = "off"
)

// Defrost carries the timing state the engine needs but the FSM owns:
// when the current defrost cycle (if any) started, and when the last one
// ended. Both are nil when not applicable.
type Defrost struct {
	StartedAt    *time.Time
	LastDefrost  *time.Time
}

// Evaluate is the Decision Engine's single entry point. now is injected so
// the engine stays a pure function of its arguments.
func Evaluate(conditions hagex.Conditions, cfg *hagex.Config, state hagex.FsmState, defrost Defrost, now time.Time) *hagex.FsmEvent {
	switch state {
	case hagex.StateInitial:
		return event(hagex.EventInitialize)
	case hagex.StateStopped:
		return nil
	}

	d := cfg.Hvac.Heating.Defrost
	if state == hagex.StateDefrost && defrost.StartedAt != nil &&
		now.Sub(*defrost.StartedAt) >= time.Duration(d.DurationSeconds)*time.Second {
		if operableNow(conditions, cfg) && shouldHeat(conditions, cfg) {
			return event(hagex.EventResumeHeating)
		}
		return event(hagex.EventCompleteDefrost)
	}

	mode := resolveEffectiveMode(conditions, cfg)
	return dispatch(mode, conditions, cfg, state, defrost, now)
}

func event(e hagex.FsmEvent) *hagex.FsmEvent {
	return &e
}

func resolveEffectiveMode(c hagex.Conditions, cfg *hagex.Config) effectiveMode {
	switch cfg.Hvac.SystemMode {
	case hagex.ModeHeatOnly:
		return modeHeat
	case hagex.ModeCoolOnly:
		return modeCool
	case hagex.ModeOff:
		return modeOff
	default: // auto
		return resolveAuto(c, cfg)
	}
}

func resolveAuto(c hagex.Conditions, cfg *hagex.Config) effectiveMode {
	hth := cfg.Hvac.Heating.Thresholds
	cth := cfg.Hvac.Cooling.Thresholds

	if c.IndoorC != nil {
		if *c.IndoorC < hth.IndoorMin {
			if inRange(c.OutdoorC, hth.OutdoorMin, hth.OutdoorMax) && operableNow(c, cfg) {
				return modeHeat
			}
			return modeOff
		}
		if *c.IndoorC > cth.IndoorMax {
			if inRange(c.OutdoorC, cth.OutdoorMin, cth.OutdoorMax) && operableNow(c, cfg) {
				return modeCool
			}
			return modeOff
		}
	}

	heatOK := inRange(c.OutdoorC, hth.OutdoorMin, hth.OutdoorMax) && operableNow(c, cfg)
	coolOK := inRange(c.OutdoorC, cth.OutdoorMin, cth.OutdoorMax) && operableNow(c, cfg)

	switch {
	case heatOK && coolOK:
		midpoint := (hth.OutdoorMax + cth.OutdoorMin) / 2
		if c.OutdoorC != nil && *c.OutdoorC <= midpoint {
			return modeHeat
		}
		return modeCool
	case heatOK:
		return modeHeat
	case coolOK:
		return modeCool
	default:
		return modeOff
	}
}

func dispatch(mode effectiveMode, c hagex.Conditions, cfg *hagex.Config, state hagex.FsmState, defrost Defrost, now time.Time) *hagex.FsmEvent {
	switch mode {
	case modeHeat:
		return dispatchHeat(c, cfg, state, defrost, now)
	case modeCool:
		return dispatchCool(c, cfg, state)
	default: // off
		return dispatchOff(state)
	}
}

func dispatchHeat(c hagex.Conditions, cfg *hagex.Config, state hagex.FsmState, defrost Defrost, now time.Time) *hagex.FsmEvent {
	if !operableNow(c, cfg) {
		return stopEventFor(state)
	}
	if needDefrost(c, cfg, state, defrost, now) {
		if state == hagex.StateHeating {
			return event(hagex.EventStartDefrost)
		}
		return nil
	}
	if shouldHeat(c, cfg) && state == hagex.StateIdle {
		return event(hagex.EventStartHeating)
	}
	if !shouldHeat(c, cfg) && state == hagex.StateHeating {
		return event(hagex.EventStopHeating)
	}
	return nil
}

func dispatchCool(c hagex.Conditions, cfg *hagex.Config, state hagex.FsmState) *hagex.FsmEvent {
	if !operableNow(c, cfg) && state == hagex.StateCooling {
		return event(hagex.EventStopCooling)
	}
	if shouldCool(c, cfg) && state == hagex.StateIdle {
		return event(hagex.EventStartCooling)
	}
	if !shouldCool(c, cfg) && state == hagex.StateCooling {
		return event(hagex.EventStopCooling)
	}
	return nil
}

func dispatchOff(state hagex.FsmState) *hagex.FsmEvent {
	switch state {
	case hagex.StateHeating:
		return event(hagex.EventStopHeating)
	case hagex.StateCooling:
		return event(hagex.EventStopCooling)
	case hagex.StateDefrost:
		return event(hagex.EventCompleteDefrost)
	default:
		return nil
	}
}

func stopEventFor(state hagex.FsmState) *hagex.FsmEvent {
	switch state {
	case hagex.StateHeating:
		return event(hagex.EventStopHeating)
	case hagex.StateCooling:
		return event(hagex.EventStopCooling)
	case hagex.StateDefrost:
		return event(hagex.EventCompleteDefrost)
	default:
		return nil
	}
}

// operableNow reports whether the wall-clock hour falls within the
// weekday/weekend active-hours window, inclusive on both ends.
func operableNow(c hagex.Conditions, cfg *hagex.Config) bool {
	ah := cfg.Hvac.ActiveHours
	startHour := ah.Start
	if c.IsWeekday {
		startHour = ah.StartWeekday
	}
	return c.Hour >= startHour && c.Hour <= ah.EndHour
}

func shouldHeat(c hagex.Conditions, cfg *hagex.Config) bool {
	if c.IndoorC == nil || c.OutdoorC == nil {
		return false
	}
	hth := cfg.Hvac.Heating.Thresholds
	return *c.IndoorC < hth.IndoorMin && inRange(c.OutdoorC, hth.OutdoorMin, hth.OutdoorMax)
}

func shouldCool(c hagex.Conditions, cfg *hagex.Config) bool {
	if c.IndoorC == nil || c.OutdoorC == nil {
		return false
	}
	cth := cfg.Hvac.Cooling.Thresholds
	return *c.IndoorC > cth.IndoorMax && inRange(c.OutdoorC, cth.OutdoorMin, cth.OutdoorMax)
}

func needDefrost(c hagex.Conditions, cfg *hagex.Config, state hagex.FsmState, defrost Defrost, now time.Time) bool {
	if state != hagex.StateHeating || c.OutdoorC == nil {
		return false
	}
	d := cfg.Hvac.Heating.Defrost
	if *c.OutdoorC > d.TemperatureThresholdC {
		return false
	}
	if defrost.LastDefrost == nil {
		return true
	}
	return now.Sub(*defrost.LastDefrost) >= time.Duration(d.PeriodSeconds)*time.Second
}

func inRange(v *float64, min, max float64) bool {
	if v == nil {
		return false
	}
	return *v >= min && *v <= max
}
