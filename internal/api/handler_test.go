package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jluzny/hag-ex"
	"github.com/jluzny/hag-ex/internal/auth"
	"github.com/jluzny/hag-ex/internal/eventlog"
	"github.com/jluzny/hag-ex/internal/logger"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeController struct {
	status     hagex.Status
	statusErr  error
	events     []eventlog.Event
	triggered  int
	triggerErr error
	lastFilter eventlog.Filter
}

func (f *fakeController) Status(ctx context.Context) (hagex.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeController) Events(filter eventlog.Filter) []eventlog.Event {
	f.lastFilter = filter
	return f.events
}

func (f *fakeController) TriggerEvaluation(ctx context.Context) error {
	f.triggered++
	return f.triggerErr
}

func testLogger() *logger.Logger {
	return logger.Get(logger.ErrorLevel)
}

func TestHealth_ReturnsOK(t *testing.T) {
	h := NewHandler(&fakeController{}, nil, testLogger())
	router := h.InitRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestStatus_ReturnsControllerStatus(t *testing.T) {
	ctrl := &fakeController{status: hagex.Status{State: hagex.StateHeating, Connected: true, EntityCount: 2}}
	h := NewHandler(ctrl, nil, testLogger())
	router := h.InitRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var got hagex.Status
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.State != hagex.StateHeating || !got.Connected || got.EntityCount != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestStatus_ErrorIsInternalServerError(t *testing.T) {
	ctrl := &fakeController{statusErr: context.DeadlineExceeded}
	h := NewHandler(ctrl, nil, testLogger())
	router := h.InitRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestEvents_FiltersByTypeAndRange(t *testing.T) {
	ctrl := &fakeController{events: []eventlog.Event{{EventID: "1", Type: "TRANSITION"}}}
	h := NewHandler(ctrl, nil, testLogger())
	router := h.InitRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events?type=transition&from=2026-08-01&to=2026-08-03", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if ctrl.lastFilter.Type != "TRANSITION" {
		t.Errorf("Type = %q, want uppercased TRANSITION", ctrl.lastFilter.Type)
	}
	if ctrl.lastFilter.From.IsZero() || ctrl.lastFilter.To.IsZero() {
		t.Errorf("filter = %+v, want both bounds set", ctrl.lastFilter)
	}
}

func TestEvents_InvalidFromIsBadRequest(t *testing.T) {
	h := NewHandler(&fakeController{}, nil, testLogger())
	router := h.InitRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events?from=not-a-date", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestTrigger_RequiresBearerToken(t *testing.T) {
	authSvc, err := auth.New("secret", []byte("key"))
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	ctrl := &fakeController{}
	h := NewHandler(ctrl, authSvc, testLogger())
	router := h.InitRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/trigger", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a token", w.Code)
	}
	if ctrl.triggered != 0 {
		t.Error("TriggerEvaluation should not run without auth")
	}
}

func TestTrigger_RoundTripWithIssuedToken(t *testing.T) {
	authSvc, err := auth.New("secret", []byte("key"))
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	ctrl := &fakeController{status: hagex.Status{State: hagex.StateIdle}}
	h := NewHandler(ctrl, authSvc, testLogger())
	router := h.InitRoutes()

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"secret":"secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/control/token", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("token issuance status = %d, body: %s", w.Code, w.Body.String())
	}
	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tokenResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/trigger", nil)
	req2.Header.Set("Authorization", "Bearer "+tokenResp.Token)
	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Fatalf("trigger status = %d, body: %s", w2.Code, w2.Body.String())
	}
	if ctrl.triggered != 1 {
		t.Errorf("triggered = %d, want 1", ctrl.triggered)
	}
}

func TestRoutes_TriggerNotRegisteredWithoutAuth(t *testing.T) {
	h := NewHandler(&fakeController{}, nil, testLogger())
	router := h.InitRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/trigger", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when auth is disabled", w.Code)
	}
}
