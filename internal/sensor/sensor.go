// Package sensor implements the sensor gateway: strict numeric parsing of a
// hub entity's state string, and extraction of ConditionsDelta values from
// state_changed events on the configured indoor sensor.
package sensor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jluzny/hag-ex"
	"github.com/jluzny/hag-ex/internal/hub"
)

// entityGetter is the subset of *hub.Client the gateway depends on, so tests
// can supply a fake without standing up a websocket.
type entityGetter interface {
	GetEntityState(ctx context.Context, entityID string) (*hagex.EntityState, error)
}

// Gateway reads and parses temperature entities exposed by the hub.
type Gateway struct {
	client        entityGetter
	indoorSensor  string
	outdoorSensor string
}

// New builds a Gateway bound to the configured indoor/outdoor sensor entity ids.
func New(client entityGetter, indoorSensor, outdoorSensor string) *Gateway {
	return &Gateway{client: client, indoorSensor: indoorSensor, outdoorSensor: outdoorSensor}
}

// ReadTemperature fetches entityID's state and parses it as a strict float,
// returning a classified error distinguishing transport failure, a missing
// entity, and an unparseable state string.
func (g *Gateway) ReadTemperature(ctx context.Context, entityID string) (float64, error) {
	state, err := g.client.GetEntityState(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %s", hagex.ErrTransportFailed, entityID, err)
	}
	if state == nil {
		return 0, fmt.Errorf("%w: %s", hagex.ErrSensorNotFound, entityID)
	}
	return parseStrictFloat(entityID, state.State)
}

// ReadOutdoor fetches the configured outdoor sensor. Failure here is
// non-fatal; callers get an error and are expected to treat the outdoor
// reading as absent rather than halt.
func (g *Gateway) ReadOutdoor(ctx context.Context) (float64, error) {
	return g.ReadTemperature(ctx, g.outdoorSensor)
}

// parseStrictFloat parses the entity's state string as a float, rejecting
// any trailing garbage (e.g. "21.5 C").
func parseStrictFloat(entityID, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: state %q: %s", hagex.ErrSensorFormatInvalid, entityID, raw, err)
	}
	return v, nil
}

// ExtractDelta inspects a state_changed event and, if it matches the
// configured indoor sensor and its new state parses as a float, returns the
// ConditionsDelta the Controller should push into the FSM. All other events
// yield ok=false.
func (g *Gateway) ExtractDelta(ev hub.StateChangedEvent, now time.Time) (hagex.ConditionsDelta, bool) {
	if ev.EntityID != g.indoorSensor || ev.NewState == nil {
		return hagex.ConditionsDelta{}, false
	}
	v, err := parseStrictFloat(ev.EntityID, ev.NewState.State)
	if err != nil {
		return hagex.ConditionsDelta{}, false
	}
	return hagex.ConditionsDelta{
		IndoorC:   v,
		Hour:      now.Hour(),
		IsWeekday: IsWeekday(now),
	}, true
}

// IsWeekday reports whether t falls on Monday through Friday.
func IsWeekday(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}
