package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tclab_control/internal/models"
	"tclab_control/internal/service"
)

func getWithAuth(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

type eventsBody struct {
	Count  int               `json:"count"`
	Events []models.RunEvent `json:"events"`
}

func TestParseQueryTime(t *testing.T) {
	cases := []struct {
		in    string
		upper bool
		want  time.Time
	}{
		{in: "2026-08-31T10:00:00+02:00", want: time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)},
		{in: "2026-08-31 10:00:00", want: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)},
		{in: "2026-08-31", want: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)},
		{in: "2026-08-31", upper: true, want: time.Date(2026, 8, 31, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)},
		{in: "2026-08-31 10:00:00", upper: true, want: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseQueryTime("to", tc.in, tc.upper)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%q upper=%v: got %v, want %v", tc.in, tc.upper, got, tc.want)
		}
	}

	_, err := parseQueryTime("from", "31-12-2026", false)
	var bad *badQueryError
	if !errors.As(err, &bad) || bad.param != "from" {
		t.Fatalf("expected badQueryError for 'from', got %v", err)
	}
}

func TestLogsHandler_ForwardsFilter(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	logs := &mockEventLog{resp: []models.RunEvent{
		{EventID: "e1", RunID: "r1", OccurredAt: now, Type: service.EventRunStart, Description: "run started"},
		{EventID: "e2", RunID: "r1", OccurredAt: now.Add(time.Second), Type: service.EventPhase, Description: "phase RUNNING"},
	}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 99}, EventLog: logs})

	q := "/api/v1/logs/?from=" + now.Format(time.RFC3339) + "&to=" + now.Add(2*time.Second).Format(time.RFC3339) + "&type=phase&run_id=r1"
	w := getWithAuth(r, q)
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}
	var out eventsBody
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 2 || len(out.Events) != 2 || out.Events[0].RunID != "r1" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if logs.lastType != "phase" {
		t.Fatalf("type should reach the service as given, got %q", logs.lastType)
	}
	if logs.lastRun != "r1" {
		t.Fatalf("run_id = %q, want r1", logs.lastRun)
	}
	if !logs.lastFrom.Equal(now) {
		t.Fatalf("from = %v, want %v", logs.lastFrom, now)
	}
}

func TestLogsHandler_BadTimesNeverReachService(t *testing.T) {
	logs := &mockEventLog{}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, EventLog: logs})

	for _, q := range []string{"?from=notatime", "?to=31-12-2025", "?from=2026-01-01&to=yesterday"} {
		if w := getWithAuth(r, "/api/v1/logs/"+q); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: got %d, want 400", q, w.Code)
		}
	}
	if logs.calls != 0 {
		t.Fatalf("service called %d times", logs.calls)
	}
}

func TestLogsHandler_DateOnlyToIsEndOfDay(t *testing.T) {
	logs := &mockEventLog{}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, EventLog: logs})

	if w := getWithAuth(r, "/api/v1/logs/?to=2025-08-31"); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	want := time.Date(2025, 8, 31, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	if !logs.lastTo.Equal(want) {
		t.Fatalf("to = %v, want %v", logs.lastTo, want)
	}
}

func TestLogsHandler_ServiceErrors(t *testing.T) {
	logs := &mockEventLog{err: fmt.Errorf("%w: unknown event type %q", service.ErrInvalidFilter, "BOGUS")}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, EventLog: logs})

	if w := getWithAuth(r, "/api/v1/logs/?type=bogus"); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid filter: got %d, want 400", w.Code)
	}

	logs.err = errors.New("db down")
	if w := getWithAuth(r, "/api/v1/logs/"); w.Code != http.StatusInternalServerError {
		t.Fatalf("store failure: got %d, want 500", w.Code)
	}
}

func TestRunEvents(t *testing.T) {
	logs := &mockEventLog{resp: []models.RunEvent{
		{EventID: "e1", RunID: "r1", Type: service.EventOverrun, Description: "cycle 3 overran by 40ms"},
	}}
	hist := &mockHistory{runs: map[string]models.Run{"r1": {ID: "r1"}}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, History: hist, EventLog: logs})

	w := getWithAuth(r, "/api/v1/runs/r1/events?type=overrun")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var out eventsBody
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 1 {
		t.Fatalf("count=%d", out.Count)
	}
	if logs.lastRun != "r1" || logs.lastType != "overrun" {
		t.Fatalf("filter run=%q type=%q", logs.lastRun, logs.lastType)
	}

	if w := getWithAuth(r, "/api/v1/runs/missing/events"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown run: got %d, want 404", w.Code)
	}
	if logs.calls != 1 {
		t.Fatalf("event log queried for an unknown run")
	}
}
