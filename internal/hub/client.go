// Package hub implements the full-duplex WebSocket client that talks to the
// home-automation hub: authentication, event subscription, get_states, and
// call_service, all multiplexed over one socket with request/response
// correlation by id.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jluzny/hag-ex"
	"github.com/jluzny/hag-ex/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	requestTimeout       = 5 * time.Second
	writeWait            = 5 * time.Second
	subscriberBufferSize = 32
	defaultRetryDelay    = time.Second
)

// StateChangedEvent is a state_changed event for a single entity, as
// delivered to subscribers registered via SubscribeStateChanged.
type StateChangedEvent struct {
	EntityID string
	OldState *hagex.EntityState
	NewState *hagex.EntityState
}

// ReconnectObserver is notified of reconnect attempts and exhaustion. It is
// satisfied by internal/metrics.Recorder without an import from this
// package back to metrics.
type ReconnectObserver interface {
	ReconnectAttempt()
	ReconnectExhausted()
}

type noopReconnectObserver struct{}

func (noopReconnectObserver) ReconnectAttempt()  {}
func (noopReconnectObserver) ReconnectExhausted() {}

// Client is the full-duplex hub protocol client.
type Client struct {
	opts   hagex.HubOptions
	log    *logger.Logger
	dialer *websocket.Dialer
	obs    ReconnectObserver

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	idCounter  int
	pending    map[int]chan inboundEnvelope
	listeners  []chan StateChangedEvent
	subscribed bool

	writeMu sync.Mutex
}

// New constructs a Client. obs may be nil.
func New(opts hagex.HubOptions, log *logger.Logger, obs ReconnectObserver) *Client {
	if obs == nil {
		obs = noopReconnectObserver{}
	}
	return &Client{
		opts:    opts,
		log:     log.Named("hub"),
		dialer:  &websocket.Dialer{HandshakeTimeout: requestTimeout},
		obs:     obs,
		pending: make(map[int]chan inboundEnvelope),
	}
}

// IsConnected reports whether the client currently has an authenticated session.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SubscribeStateChanged registers a new subscriber and returns the channel it
// should drain. Events are delivered in arrival order; a subscriber that
// falls behind does not block delivery to other subscribers or the read
// loop — events are dropped for that subscriber instead.
func (c *Client) SubscribeStateChanged() <-chan StateChangedEvent {
	ch := make(chan StateChangedEvent, subscriberBufferSize)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	wasSubscribed := c.subscribed
	c.subscribed = true
	connected := c.connected
	c.mu.Unlock()

	if connected && !wasSubscribed {
		if err := c.sendSubscribe(context.Background()); err != nil {
			c.log.Warnw("subscribe_events failed", "err", err)
		}
	}
	return ch
}

// Run dials, authenticates, and services the socket until ctx is canceled or
// the configured retry budget is exhausted. A nil return means ctx was
// canceled; a non-nil return is fatal to the supervising caller.
func (c *Client) Run(ctx context.Context) error {
	retries := 0
	delay := time.Duration(c.opts.RetryDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := c.runSession(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		c.failAllPending(fmt.Errorf("%w: disconnected", hagex.ErrTransportFailed))

		if hagexErrorIs(err, hagex.ErrAuthInvalid) {
			c.log.Errorw("hub auth rejected", "err", err)
			return err
		}

		retries++
		if retries > c.opts.MaxRetries {
			c.obs.ReconnectExhausted()
			return fmt.Errorf("%w: exhausted %d retries: %s", hagex.ErrTransportFailed, c.opts.MaxRetries, err)
		}

		c.obs.ReconnectAttempt()
		c.log.Warnw("hub session ended, retrying", "err", err, "attempt", retries, "max_retries", c.opts.MaxRetries)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func hagexErrorIs(err error, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (c *Client) runSession(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.WSURL, nil)
	if err != nil {
		return fmt.Errorf("%w: dial: %s", hagex.ErrTransportFailed, err)
	}
	defer func() { _ = conn.Close() }()

	if err := c.handshake(conn); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.idCounter = 0
	c.pending = make(map[int]chan inboundEnvelope)
	shouldSubscribe := c.subscribed
	c.mu.Unlock()

	readErrCh := make(chan error, 1)
	go c.readLoop(conn, readErrCh)

	if shouldSubscribe {
		if err := c.sendSubscribe(ctx); err != nil {
			c.mu.Lock()
			c.connected = false
			c.conn = nil
			c.mu.Unlock()
			return err
		}
	}

	var sessionErr error
	select {
	case <-ctx.Done():
		sessionErr = nil
	case sessionErr = <-readErrCh:
	}

	c.mu.Lock()
	c.connected = false
	c.conn = nil
	c.mu.Unlock()

	return sessionErr
}

func (c *Client) handshake(conn *websocket.Conn) error {
	var first inboundEnvelope
	if err := conn.ReadJSON(&first); err != nil {
		return fmt.Errorf("%w: reading handshake: %s", hagex.ErrTransportFailed, err)
	}
	if first.Type != msgTypeAuthRequired {
		return fmt.Errorf("%w: unexpected handshake message %q", hagex.ErrTransportFailed, first.Type)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(authMessage{Type: msgTypeAuth, AccessToken: c.opts.AccessToken}); err != nil {
		return fmt.Errorf("%w: sending auth: %s", hagex.ErrTransportFailed, err)
	}

	var resp inboundEnvelope
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("%w: reading auth reply: %s", hagex.ErrTransportFailed, err)
	}
	switch resp.Type {
	case msgTypeAuthOK:
		return nil
	case msgTypeAuthInvalid:
		return fmt.Errorf("%w: %s", hagex.ErrAuthInvalid, resp.Message)
	default:
		return fmt.Errorf("%w: unexpected auth reply %q", hagex.ErrTransportFailed, resp.Type)
	}
}

func (c *Client) sendSubscribe(ctx context.Context) error {
	id := c.nextRequestID()
	_, err := c.sendAndWait(ctx, id, subscribeEventsMessage{ID: id, Type: msgTypeSubscribe, EventType: eventTypeStateChanged})
	return err
}

func (c *Client) readLoop(conn *websocket.Conn, done chan<- error) {
	for {
		var env inboundEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			done <- err
			return
		}
		switch env.Type {
		case msgTypeResult:
			c.resolveWaiter(env)
		case msgTypeEvent:
			c.dispatchEvent(env.Event)
		default:
			// Tolerate and ignore unrecognized message types.
		}
	}
}

func (c *Client) resolveWaiter(env inboundEnvelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	if ok {
		delete(c.pending, env.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warnw("result for unknown or already-resolved request id", "id", env.ID)
		return
	}
	ch <- env
}

func (c *Client) dispatchEvent(raw json.RawMessage) {
	var data stateChangedEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		c.log.Warnw("malformed event payload", "err", err)
		return
	}
	if data.EventType != eventTypeStateChanged {
		return
	}

	ev := StateChangedEvent{EntityID: data.Data.EntityID}
	if data.Data.OldState != nil {
		ev.OldState = toEntityState(data.Data.OldState)
	}
	if data.Data.NewState != nil {
		ev.NewState = toEntityState(data.Data.NewState)
	}

	c.mu.Lock()
	listeners := make([]chan StateChangedEvent, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		select {
		case l <- ev:
		default:
			c.log.Warnw("subscriber channel full, dropping event", "entity_id", ev.EntityID)
		}
	}
}

func toEntityState(s *stateObject) *hagex.EntityState {
	return &hagex.EntityState{
		EntityID:   s.EntityID,
		State:      s.State,
		Attributes: s.Attributes,
	}
}

func (c *Client) nextRequestID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idCounter++
	return c.idCounter
}

// sendAndWait registers a waiter for id, writes payload, and blocks for a
// matching result, a 5-second timeout, or ctx cancellation.
func (c *Client) sendAndWait(ctx context.Context, id int, payload any) (inboundEnvelope, error) {
	ch := make(chan inboundEnvelope, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return inboundEnvelope{}, fmt.Errorf("%w: not connected", hagex.ErrTransportFailed)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeJSON(payload); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return inboundEnvelope{}, fmt.Errorf("%w: %s", hagex.ErrTransportFailed, err)
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case env := <-ch:
		return env, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return inboundEnvelope{}, hagex.ErrRequestTimeout
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return inboundEnvelope{}, ctx.Err()
	}
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int]chan inboundEnvelope)
	c.mu.Unlock()

	for id, ch := range pending {
		ch <- inboundEnvelope{ID: id, Type: msgTypeResult, Success: false, Error: &resultError{Message: err.Error()}}
	}
}

// GetEntityState fetches a full get_states snapshot and linear-searches it
// for entityID. A missing entity is a successful nil, not an error.
func (c *Client) GetEntityState(ctx context.Context, entityID string) (*hagex.EntityState, error) {
	id := c.nextRequestID()
	env, err := c.sendAndWait(ctx, id, getStatesMessage{ID: id, Type: msgTypeGetStates})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: %s", hagex.ErrServiceCallFailed, errMessage(env.Error))
	}

	var states []stateObject
	if err := json.Unmarshal(env.Result, &states); err != nil {
		return nil, fmt.Errorf("%w: decoding get_states result: %s", hagex.ErrTransportFailed, err)
	}
	for _, s := range states {
		if s.EntityID == entityID {
			return toEntityState(&s), nil
		}
	}
	return nil, nil
}

// CallService invokes domain.service with data and waits for the hub's result.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	id := c.nextRequestID()
	env, err := c.sendAndWait(ctx, id, callServiceMessage{
		ID:          id,
		Type:        msgTypeCallService,
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("%w: %s.%s: %s", hagex.ErrServiceCallFailed, domain, service, errMessage(env.Error))
	}
	return nil
}

func errMessage(e *resultError) string {
	if e == nil {
		return "unknown error"
	}
	return e.Message
}
