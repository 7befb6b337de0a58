// Package fsm implements the HVAC state machine: five states, a fixed
// transition table, a 5-second tick loop that consults the decision engine,
// and the side-effecting enter hooks that drive the hub's climate entities.
// The Machine is a single long-lived task; all of its mutable state is
// owned and mutated only on its own goroutine.
package fsm

import (
	"context"
	"fmt"
	"time"

	"github.com/jluzny/hag-ex"
	"github.com/jluzny/hag-ex/internal/decision"
	"github.com/jluzny/hag-ex/internal/logger"
)

const (
	tickInterval    = 5 * time.Second
	internalTimeout = 2 * time.Second
)

// ServiceCaller is the hub capability the FSM needs to drive entities. It is
// satisfied by *hub.Client.
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service string, data map[string]any) error
}

// Observer is notified of committed transitions and rejected side effects.
// internal/metrics.Recorder and internal/eventlog.Log each implement it.
type Observer interface {
	Transition(from, to hagex.FsmState, event hagex.FsmEvent)
	PartialFailure(from hagex.FsmState, event hagex.FsmEvent)
	DefrostStarted()
	DefrostCompleted()
}

// transitions is the fixed state/event table; any (state, event) pair
// absent from it is a rejected transition.
var transitions = map[hagex.FsmState]map[hagex.FsmEvent]hagex.FsmState{
	hagex.StateInitial: {
		hagex.EventInitialize: hagex.StateIdle,
	},
	hagex.StateIdle: {
		hagex.EventStartHeating: hagex.StateHeating,
		hagex.EventStartCooling: hagex.StateCooling,
		hagex.EventStartDefrost: hagex.StateDefrost,
		hagex.EventShutdown:     hagex.StateStopped,
	},
	hagex.StateHeating: {
		hagex.EventStopHeating:  hagex.StateIdle,
		hagex.EventStartDefrost: hagex.StateDefrost,
		hagex.EventShutdown:     hagex.StateStopped,
	},
	hagex.StateCooling: {
		hagex.EventStopCooling: hagex.StateIdle,
		hagex.EventShutdown:    hagex.StateStopped,
	},
	hagex.StateDefrost: {
		hagex.EventCompleteDefrost: hagex.StateIdle,
		hagex.EventResumeHeating:   hagex.StateHeating,
		hagex.EventShutdown:        hagex.StateStopped,
	},
}

type payload struct {
	state          hagex.FsmState
	conditions     hagex.Conditions
	defrostStarted *time.Time
	lastDefrost    *time.Time
}

type statusRequest struct {
	reply chan hagex.FsmState
}

// Machine is the HVAC state machine task.
type Machine struct {
	cfg       *hagex.Config
	caller    ServiceCaller
	log       *logger.Logger
	observers []Observer

	payload payload

	updates    chan hagex.Conditions
	forceTicks chan struct{}
	statusReqs chan statusRequest
}

// New builds a Machine starting in StateInitial. observers may be empty.
func New(cfg *hagex.Config, caller ServiceCaller, log *logger.Logger, observers ...Observer) *Machine {
	return &Machine{
		cfg:        cfg,
		caller:     caller,
		log:        log.Named("fsm"),
		observers:  observers,
		payload:    payload{state: hagex.StateInitial},
		updates:    make(chan hagex.Conditions, 1),
		forceTicks: make(chan struct{}, 1),
		statusReqs: make(chan statusRequest),
	}
}

// PushConditions delivers the latest conditions snapshot to the machine. It
// never blocks: a conditions update that arrives before the prior one is
// consumed replaces it — the next tick consumes the latest push, not a
// queue of pushes.
func (m *Machine) PushConditions(c hagex.Conditions) {
	for {
		select {
		case m.updates <- c:
			return
		default:
			select {
			case <-m.updates:
			default:
			}
		}
	}
}

// ForceTick requests an out-of-band evaluation, used by the Controller's
// manual evaluation trigger instead of waiting for the next periodic tick.
func (m *Machine) ForceTick() {
	select {
	case m.forceTicks <- struct{}{}:
	default:
	}
}

// State returns the machine's current state.
func (m *Machine) State(ctx context.Context) (hagex.FsmState, error) {
	ctx, cancel := context.WithTimeout(ctx, internalTimeout)
	defer cancel()

	reply := make(chan hagex.FsmState, 1)
	select {
	case m.statusReqs <- statusRequest{reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run services ticks, conditions pushes, and status requests until ctx is
// canceled, at which point it runs the shutdown side effects, transitions to
// StateStopped, and returns — halting ticks for good. A machine still in
// StateInitial has no shutdown transition: it makes no calls and stays in
// StateInitial.
func (m *Machine) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.handleShutdown()
			return
		case c := <-m.updates:
			m.payload.conditions = c
		case req := <-m.statusReqs:
			req.reply <- m.payload.state
		case <-m.forceTicks:
			m.tick(ctx)
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Machine) tick(ctx context.Context) {
	d := decision.Defrost{StartedAt: m.payload.defrostStarted, LastDefrost: m.payload.lastDefrost}
	ev := decision.Evaluate(m.payload.conditions, m.cfg, m.payload.state, d, time.Now())
	if ev == nil {
		return
	}
	m.applyEvent(ctx, *ev)
}

func (m *Machine) applyEvent(ctx context.Context, ev hagex.FsmEvent) {
	from := m.payload.state
	to, ok := transitions[from][ev]
	if !ok {
		m.log.Warnw("fsm transition rejected", "from", from, "event", ev)
		return
	}

	if err := m.runSideEffects(ctx, from, ev, to); err != nil {
		m.log.Warnw("fsm side effects failed, transition not committed", "from", from, "event", ev, "to", to, "err", err)
		for _, o := range m.observers {
			o.PartialFailure(from, ev)
		}
		return
	}

	m.commit(from, ev, to)
}

func (m *Machine) commit(from hagex.FsmState, ev hagex.FsmEvent, to hagex.FsmState) {
	now := time.Now()

	if to == hagex.StateDefrost {
		m.payload.defrostStarted = &now
	}
	if from == hagex.StateDefrost && to != hagex.StateDefrost {
		m.payload.defrostStarted = nil
		if ev == hagex.EventCompleteDefrost || ev == hagex.EventResumeHeating {
			m.payload.lastDefrost = &now
			for _, o := range m.observers {
				o.DefrostCompleted()
			}
		}
	}

	m.payload.state = to
	m.log.Infow("fsm transition", "from", from, "event", ev, "to", to)
	for _, o := range m.observers {
		o.Transition(from, to, ev)
	}
	if to == hagex.StateDefrost {
		for _, o := range m.observers {
			o.DefrostStarted()
		}
	}
}

func (m *Machine) runSideEffects(ctx context.Context, from hagex.FsmState, ev hagex.FsmEvent, to hagex.FsmState) error {
	switch to {
	case hagex.StateHeating:
		h := m.cfg.Hvac.Heating
		return m.enterMode(ctx, "heat", h.PresetMode, h.SetpointC)
	case hagex.StateCooling:
		c := m.cfg.Hvac.Cooling
		return m.enterMode(ctx, "cool", c.PresetMode, c.SetpointC)
	case hagex.StateDefrost:
		return m.enterDefrost(ctx)
	case hagex.StateIdle:
		if ev == hagex.EventInitialize {
			return nil
		}
		return m.enterOff(ctx, m.cfg.EnabledEntities())
	case hagex.StateStopped:
		return m.enterOff(ctx, m.cfg.EnabledEntities())
	}
	return nil
}

func (m *Machine) enterMode(ctx context.Context, hvacMode, presetMode string, setpoint float64) error {
	for _, e := range m.cfg.EnabledEntities() {
		if err := m.caller.CallService(ctx, "climate", "set_hvac_mode", map[string]any{"entity_id": e.EntityID, "hvac_mode": hvacMode}); err != nil {
			return fmt.Errorf("%w: %s: set_hvac_mode: %s", hagex.ErrPartialEntityFailure, e.EntityID, err)
		}
		if err := m.caller.CallService(ctx, "climate", "set_preset_mode", map[string]any{"entity_id": e.EntityID, "preset_mode": presetMode}); err != nil {
			return fmt.Errorf("%w: %s: set_preset_mode: %s", hagex.ErrPartialEntityFailure, e.EntityID, err)
		}
		if err := m.caller.CallService(ctx, "climate", "set_temperature", map[string]any{"entity_id": e.EntityID, "temperature": setpoint}); err != nil {
			return fmt.Errorf("%w: %s: set_temperature: %s", hagex.ErrPartialEntityFailure, e.EntityID, err)
		}
	}
	return nil
}

func (m *Machine) enterDefrost(ctx context.Context) error {
	for _, e := range m.cfg.DefrostCapableEntities() {
		if err := m.caller.CallService(ctx, "climate", "set_hvac_mode", map[string]any{"entity_id": e.EntityID, "hvac_mode": "cool"}); err != nil {
			return fmt.Errorf("%w: %s: set_hvac_mode: %s", hagex.ErrPartialEntityFailure, e.EntityID, err)
		}
	}
	return nil
}

func (m *Machine) enterOff(ctx context.Context, entities []hagex.Entity) error {
	for _, e := range entities {
		if err := m.caller.CallService(ctx, "climate", "set_hvac_mode", map[string]any{"entity_id": e.EntityID, "hvac_mode": "off"}); err != nil {
			return fmt.Errorf("%w: %s: set_hvac_mode: %s", hagex.ErrPartialEntityFailure, e.EntityID, err)
		}
	}
	return nil
}

func (m *Machine) handleShutdown() {
	from := m.payload.state
	to, ok := transitions[from][hagex.EventShutdown]
	if !ok {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), internalTimeout)
	defer cancel()

	if err := m.enterOff(shutdownCtx, m.cfg.EnabledEntities()); err != nil {
		m.log.Warnw("shutdown side effects failed", "from", from, "err", err)
	}
	m.commit(from, hagex.EventShutdown, to)
}
