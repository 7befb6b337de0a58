package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jluzny/hag-ex"
	"github.com/jluzny/hag-ex/internal/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// fakeHub is a minimal stand-in for the hub's websocket endpoint: it speaks
// the auth handshake and then hands the test a connection it can drive
// directly.
type fakeHub struct {
	t          *testing.T
	token      string
	authFail   bool
	onConn     func(conn *websocket.Conn)
}

func (f *fakeHub) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Fatalf("upgrade: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(inboundEnvelope{Type: msgTypeAuthRequired}); err != nil {
		return
	}
	var auth authMessage
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if f.authFail || auth.AccessToken != f.token {
		_ = conn.WriteJSON(inboundEnvelope{Type: msgTypeAuthInvalid, Message: "invalid access token"})
		return
	}
	if err := conn.WriteJSON(inboundEnvelope{Type: msgTypeAuthOK}); err != nil {
		return
	}

	if f.onConn != nil {
		f.onConn(conn)
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTestClient(t *testing.T, server *httptest.Server, token string) *Client {
	t.Helper()
	opts := hagex.HubOptions{
		WSURL:       wsURL(server),
		AccessToken: token,
		MaxRetries:  0,
	}
	return New(opts, logger.Get(logger.ErrorLevel), nil)
}

func TestClient_AuthSuccess_BecomesConnected(t *testing.T) {
	f := &fakeHub{token: "good-token", onConn: func(conn *websocket.Conn) {
		// keep the connection open until the test context is canceled
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}}
	server := httptest.NewServer(http.HandlerFunc(f.handler))
	f.t = t
	defer server.Close()

	client := newTestClient(t, server, "good-token")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	waitFor(t, func() bool { return client.IsConnected() })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error after cancel: %v", err)
	}
}

func TestClient_AuthInvalid_IsFatal(t *testing.T) {
	f := &fakeHub{token: "good-token", authFail: true}
	server := httptest.NewServer(http.HandlerFunc(f.handler))
	f.t = t
	defer server.Close()

	client := newTestClient(t, server, "wrong-token")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := client.Run(ctx)
	if err == nil {
		t.Fatal("expected auth_invalid to be a fatal error")
	}
	if !strings.Contains(err.Error(), "auth invalid") {
		t.Errorf("error = %v, want auth invalid", err)
	}
}

func TestClient_CallService_RoundTrip(t *testing.T) {
	f := &fakeHub{token: "t"}
	f.onConn = func(conn *websocket.Conn) {
		var msg callServiceMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Domain != "climate" || msg.Service != "set_hvac_mode" {
			t.Errorf("unexpected call_service: %+v", msg)
		}
		_ = conn.WriteJSON(inboundEnvelope{ID: msg.ID, Type: msgTypeResult, Success: true})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	server := httptest.NewServer(http.HandlerFunc(f.handler))
	f.t = t
	defer server.Close()

	client := newTestClient(t, server, "t")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	waitFor(t, client.IsConnected)

	if err := client.CallService(context.Background(), "climate", "set_hvac_mode", map[string]any{"hvac_mode": "heat"}); err != nil {
		t.Fatalf("CallService: %v", err)
	}
}

func TestClient_CallService_ServiceFailureIsError(t *testing.T) {
	f := &fakeHub{token: "t"}
	f.onConn = func(conn *websocket.Conn) {
		var msg callServiceMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.WriteJSON(inboundEnvelope{ID: msg.ID, Type: msgTypeResult, Success: false, Error: &resultError{Code: "not_found", Message: "entity not found"}})
	}
	server := httptest.NewServer(http.HandlerFunc(f.handler))
	f.t = t
	defer server.Close()

	client := newTestClient(t, server, "t")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	waitFor(t, client.IsConnected)

	err := client.CallService(context.Background(), "climate", "set_hvac_mode", nil)
	if err == nil {
		t.Fatal("expected error for failed service call")
	}
	if !strings.Contains(err.Error(), "entity not found") {
		t.Errorf("error = %v, want to mention hub error message", err)
	}
}

func TestClient_GetEntityState_NotFoundIsNilNotError(t *testing.T) {
	f := &fakeHub{token: "t"}
	f.onConn = func(conn *websocket.Conn) {
		var msg getStatesMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.WriteJSON(inboundEnvelope{ID: msg.ID, Type: msgTypeResult, Success: true, Result: []byte(`[{"entity_id":"sensor.other","state":"1"}]`)})
	}
	server := httptest.NewServer(http.HandlerFunc(f.handler))
	f.t = t
	defer server.Close()

	client := newTestClient(t, server, "t")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	waitFor(t, client.IsConnected)

	state, err := client.GetEntityState(context.Background(), "sensor.missing")
	if err != nil {
		t.Fatalf("GetEntityState: %v", err)
	}
	if state != nil {
		t.Errorf("state = %+v, want nil for missing entity", state)
	}
}

func TestClient_GetEntityState_Found(t *testing.T) {
	f := &fakeHub{token: "t"}
	f.onConn = func(conn *websocket.Conn) {
		var msg getStatesMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.WriteJSON(inboundEnvelope{ID: msg.ID, Type: msgTypeResult, Success: true, Result: []byte(`[{"entity_id":"sensor.outdoor","state":"12.5"}]`)})
	}
	server := httptest.NewServer(http.HandlerFunc(f.handler))
	f.t = t
	defer server.Close()

	client := newTestClient(t, server, "t")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	waitFor(t, client.IsConnected)

	state, err := client.GetEntityState(context.Background(), "sensor.outdoor")
	if err != nil {
		t.Fatalf("GetEntityState: %v", err)
	}
	if state == nil || state.State != "12.5" {
		t.Fatalf("state = %+v, want sensor.outdoor=12.5", state)
	}
}

func TestClient_SubscribeStateChanged_DeliversEvents(t *testing.T) {
	f := &fakeHub{token: "t"}
	release := make(chan struct{})
	f.onConn = func(conn *websocket.Conn) {
		var sub subscribeEventsMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		_ = conn.WriteJSON(inboundEnvelope{ID: sub.ID, Type: msgTypeResult, Success: true})
		<-release
		_ = conn.WriteJSON(inboundEnvelope{
			Type: msgTypeEvent,
			Event: []byte(`{"event_type":"state_changed","data":{"entity_id":"sensor.living_room_temperature","new_state":{"entity_id":"sensor.living_room_temperature","state":"21.4"}}}`),
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	server := httptest.NewServer(http.HandlerFunc(f.handler))
	f.t = t
	defer server.Close()

	client := newTestClient(t, server, "t")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := client.SubscribeStateChanged()
	go client.Run(ctx)
	waitFor(t, client.IsConnected)
	close(release)

	select {
	case ev := <-events:
		if ev.EntityID != "sensor.living_room_temperature" || ev.NewState == nil || ev.NewState.State != "21.4" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state_changed event")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
