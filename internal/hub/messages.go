package hub

import "encoding/json"

// Wire message shapes for the hub's WebSocket API, modeled on the Home
// Assistant websocket protocol: a server-initiated auth handshake followed
// by id-correlated commands and results, and an asynchronous event stream
// for subscriptions.

type inboundEnvelope struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *resultError    `json:"error,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Message string          `json:"message,omitempty"` // auth_invalid
}

type resultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

type subscribeEventsMessage struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type"`
}

type getStatesMessage struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

type callServiceMessage struct {
	ID          int            `json:"id"`
	Type        string         `json:"type"`
	Domain      string         `json:"domain"`
	Service     string         `json:"service"`
	ServiceData map[string]any `json:"service_data,omitempty"`
}

// stateChangedEventData is the payload of an event whose event_type is
// "state_changed".
type stateChangedEventData struct {
	EventType string          `json:"event_type"`
	Data      stateChangeData `json:"data"`
}

type stateChangeData struct {
	EntityID string       `json:"entity_id"`
	OldState *stateObject `json:"old_state"`
	NewState *stateObject `json:"new_state"`
}

type stateObject struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

const (
	msgTypeAuthRequired   = "auth_required"
	msgTypeAuth           = "auth"
	msgTypeAuthOK         = "auth_ok"
	msgTypeAuthInvalid    = "auth_invalid"
	msgTypeSubscribe      = "subscribe_events"
	msgTypeGetStates      = "get_states"
	msgTypeCallService    = "call_service"
	msgTypeResult         = "result"
	msgTypeEvent          = "event"
	eventTypeStateChanged = "state_changed"
)
