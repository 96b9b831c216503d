package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"tclab_control/internal/controller"
	"tclab_control/internal/models"
	"tclab_control/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", defaultInterval},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=2m", defaultInterval},
		{"interval_ms_too_large", "/ws?interval_ms=120000", defaultInterval},
		{"interval_invalid_string", "/ws?interval=bogus", defaultInterval},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"invalid_interval_falls_back_to_ms", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, tc.u, nil)
			if got := h.parseInterval(c); got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialLive(t *testing.T, s *service.Service, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(s, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestWebSocket_StatusThenLiveSamples(t *testing.T) {
	run := models.Run{ID: "r1", Status: models.RunStatusRunning}
	ctrl := &mockControl{status: service.RunStatus{Active: true, Phase: controller.PhaseRunning, Run: &run}}
	hub := service.NewHub(8)
	conn := dialLive(t, &service.Service{Control: ctrl, Live: hub}, "")

	env := readEnvelope(t, conn)
	if env.Type != envelopeStatus {
		t.Fatalf("first envelope type = %q, want status", env.Type)
	}
	var st service.RunStatus
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if !st.Active || st.Phase != controller.PhaseRunning || st.Run == nil || st.Run.ID != "r1" {
		t.Fatalf("unexpected status: %+v", st)
	}

	sample := models.Sample{Index: 4, T: 8, Measured: 31.2, Setpoint: 40, Output: 55}
	if n := hub.Publish(service.LiveEvent{Type: service.LiveSample, RunID: "r1", Sample: &sample}); n != 1 {
		t.Fatalf("expected one subscriber, got %d", n)
	}

	env = readEnvelope(t, conn)
	if env.Type != service.LiveSample {
		t.Fatalf("envelope type = %q, want sample", env.Type)
	}
	var ev service.LiveEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Sample == nil || *ev.Sample != sample {
		t.Fatalf("unexpected sample: %+v", ev.Sample)
	}
}

func TestWebSocket_PeriodicStatus(t *testing.T) {
	ctrl := &mockControl{}
	conn := dialLive(t, &service.Service{Control: ctrl, Live: service.NewHub(1)}, "interval_ms=20")

	for i := 0; i < 2; i++ {
		if env := readEnvelope(t, conn); env.Type != envelopeStatus {
			t.Fatalf("envelope %d type = %q, want status", i, env.Type)
		}
	}
}

func TestWebSocket_UnsubscribesOnClose(t *testing.T) {
	hub := service.NewHub(1)
	conn := dialLive(t, &service.Service{Control: &mockControl{}, Live: hub}, "")
	readEnvelope(t, conn)
	if hub.Subscribers() != 1 {
		t.Fatalf("expected one subscriber, got %d", hub.Subscribers())
	}

	_ = conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not released after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
