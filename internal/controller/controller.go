// Package controller is the composition root: it owns configuration,
// starts the hub client, creates the FSM, subscribes to state_changed
// events, and refreshes conditions as they arrive.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/jluzny/hag-ex"
	"github.com/jluzny/hag-ex/internal/eventlog"
	"github.com/jluzny/hag-ex/internal/fsm"
	"github.com/jluzny/hag-ex/internal/hub"
	"github.com/jluzny/hag-ex/internal/logger"
	"github.com/jluzny/hag-ex/internal/metrics"
	"github.com/jluzny/hag-ex/internal/sensor"

	"github.com/prometheus/client_golang/prometheus"
)

// Controller wires the hub client, the FSM, the Decision Engine (via the
// FSM), and the Sensor Gateway into one supervised unit.
type Controller struct {
	cfg     *hagex.Config
	log     *logger.Logger
	client  *hub.Client
	machine *fsm.Machine
	gateway *sensor.Gateway
	events  *eventlog.Log
	metrics *metrics.Recorder

	mu       sync.Mutex
	lastSeen hagex.Conditions
}

// New builds a Controller from configuration. reg registers the controller's
// Prometheus collectors.
func New(cfg *hagex.Config, log *logger.Logger, reg prometheus.Registerer) *Controller {
	events := eventlog.New(1000)
	rec := metrics.New(reg)

	client := hub.New(cfg.Hub, log, multiReconnectObserver{rec, events})
	machine := fsm.New(cfg, client, log, rec, events)
	gateway := sensor.New(client, cfg.Hvac.TempSensor, cfg.Hvac.OutdoorSensor)

	return &Controller{
		cfg:     cfg,
		log:     log.Named("controller"),
		client:  client,
		machine: machine,
		gateway: gateway,
		events:  events,
		metrics: rec,
	}
}

type multiReconnectObserver struct {
	a hub.ReconnectObserver
	b hub.ReconnectObserver
}

func (m multiReconnectObserver) ReconnectAttempt() {
	m.a.ReconnectAttempt()
	m.b.ReconnectAttempt()
}

func (m multiReconnectObserver) ReconnectExhausted() {
	m.a.ReconnectExhausted()
	m.b.ReconnectExhausted()
}

// Run starts the hub client, the FSM, and the event-bridging loop, blocking
// until ctx is canceled or the hub client returns a fatal error.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := c.client.SubscribeStateChanged()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.machine.Run(ctx)
	}()

	hubErrCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hubErrCh <- c.client.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.bridgeEvents(ctx, events)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-hubErrCh:
	}
	cancel()
	wg.Wait()
	return err
}

func (c *Controller) bridgeEvents(ctx context.Context, events <-chan hub.StateChangedEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			c.handleStateChanged(ctx, ev)
		}
	}
}

func (c *Controller) handleStateChanged(ctx context.Context, ev hub.StateChangedEvent) {
	delta, ok := c.gateway.ExtractDelta(ev, time.Now())
	if !ok {
		return
	}
	c.refreshAndPush(ctx, delta)
}

func (c *Controller) refreshAndPush(ctx context.Context, delta hagex.ConditionsDelta) {
	conditions := hagex.Conditions{
		Hour:      delta.Hour,
		IsWeekday: delta.IsWeekday,
	}.WithIndoor(delta.IndoorC)
	c.metrics.ObserveIndoor(delta.IndoorC)

	if outdoor, err := c.gateway.ReadOutdoor(ctx); err != nil {
		c.log.Warnw("outdoor sensor read failed, proceeding without outdoor context", "err", err)
	} else {
		conditions = conditions.WithOutdoor(outdoor)
		c.metrics.ObserveOutdoor(outdoor)
	}

	c.mu.Lock()
	c.lastSeen = conditions
	c.mu.Unlock()

	c.machine.PushConditions(conditions)
}

// TriggerEvaluation forces an immediate conditions refresh and an
// out-of-band FSM evaluation, rather than waiting for the next
// state_changed event or periodic tick.
func (c *Controller) TriggerEvaluation(ctx context.Context) error {
	indoor, err := c.gateway.ReadTemperature(ctx, c.cfg.Hvac.TempSensor)
	if err != nil {
		return err
	}
	now := time.Now()
	c.refreshAndPush(ctx, hagex.ConditionsDelta{
		IndoorC:   indoor,
		Hour:      now.Hour(),
		IsWeekday: sensor.IsWeekday(now),
	})
	c.machine.ForceTick()
	return nil
}

// Status returns the controller's current status record.
func (c *Controller) Status(ctx context.Context) (hagex.Status, error) {
	state, err := c.machine.State(ctx)
	if err != nil {
		return hagex.Status{}, err
	}
	return hagex.Status{
		State:          state,
		Connected:      c.client.IsConnected(),
		EntityCount:    len(c.cfg.EnabledEntities()),
		ConfiguredTemp: c.cfg.Hvac.TempSensor,
	}, nil
}

// Events returns recorded controller events matching f.
func (c *Controller) Events(f eventlog.Filter) []eventlog.Event {
	return c.events.List(f)
}

// LastConditions returns the most recent conditions snapshot pushed into the
// FSM. It is not part of the status record served by the control API.
func (c *Controller) LastConditions() hagex.Conditions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}
