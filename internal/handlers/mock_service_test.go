package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tclab_control/internal/models"
	"tclab_control/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}

func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}

func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockControl struct {
	mu        sync.Mutex
	run       models.Run
	startErr  error
	abortErr  error
	status    service.RunStatus
	lastStart service.RunParams
	starts    int
	aborts    int
}

func (m *mockControl) Execute(_ context.Context, p service.RunParams) (service.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastStart = p
	return service.Outcome{Run: m.run}, m.startErr
}

func (m *mockControl) StartRun(_ context.Context, p service.RunParams) (models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	m.lastStart = p
	return m.run, m.startErr
}

func (m *mockControl) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts++
	return m.abortErr
}

func (m *mockControl) Close() {}

func (m *mockControl) Status() service.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

type mockHistory struct {
	runs      map[string]models.Run
	samples   map[string][]models.Sample
	err       error
	lastLimit int
}

func (m *mockHistory) ListRuns(_ context.Context, limit int) ([]models.Run, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockHistory) GetRun(_ context.Context, id string) (models.Run, error) {
	if m.err != nil {
		return models.Run{}, m.err
	}
	r, ok := m.runs[id]
	if !ok {
		return models.Run{}, service.ErrRunNotFound
	}
	return r, nil
}

func (m *mockHistory) Samples(ctx context.Context, id string) ([]models.Sample, error) {
	if _, err := m.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return m.samples[id], nil
}

type mockEventLog struct {
	resp     []models.RunEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
	lastRun  string
	calls    int
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.RunEvent, error) {
	m.calls++
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastRun = f.RunID
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
