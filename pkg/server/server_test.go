package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/koompi/nimmit-assistant/pkg/briefing"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/maintenance"
	"github.com/koompi/nimmit-assistant/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockBriefings implements BriefingService for testing.
type MockBriefings struct {
	SendFunc      func(ctx context.Context, clientID, message, sessionID string) (*briefing.TurnResult, error)
	GetActiveFunc func(ctx context.Context, clientID string) (*models.BriefingSession, error)
	AbandonFunc   func(ctx context.Context, clientID string) error
}

func (m *MockBriefings) Send(ctx context.Context, clientID, message, sessionID string) (*briefing.TurnResult, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, clientID, message, sessionID)
	}
	return &briefing.TurnResult{}, nil
}

func (m *MockBriefings) GetActive(ctx context.Context, clientID string) (*models.BriefingSession, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, clientID)
	}
	return nil, nil
}

func (m *MockBriefings) Abandon(ctx context.Context, clientID string) error {
	if m.AbandonFunc != nil {
		return m.AbandonFunc(ctx, clientID)
	}
	return nil
}

// MockMaintenance implements MaintenanceService for testing.
type MockMaintenance struct {
	RunFunc func(ctx context.Context, id string) (*maintenance.Summary, error)
	ran     int
}

func (m *MockMaintenance) Run(ctx context.Context, id string) (*maintenance.Summary, error) {
	m.ran++
	if m.RunFunc != nil {
		return m.RunFunc(ctx, id)
	}
	return &maintenance.Summary{Task: id}, nil
}

func (m *MockMaintenance) RunAll(context.Context) map[string]maintenance.Outcome {
	m.ran++
	return map[string]maintenance.Outcome{
		maintenance.TaskFlagStaleJobs:       {Summary: &maintenance.Summary{Task: maintenance.TaskFlagStaleJobs}},
		maintenance.TaskSyncWorkerJobCounts: {Error: "disk I/O error"},
	}
}

func (m *MockMaintenance) List() []maintenance.TaskInfo {
	return []maintenance.TaskInfo{{ID: maintenance.TaskFlagStaleJobs, Name: "Flag stale jobs"}}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, b *MockBriefings, m *MockMaintenance) *Server {
	t.Helper()
	auth, err := NewTokenAuthenticator(map[string]string{
		"client-token": "client-1:client",
		"admin-token":  "ops:admin",
	})
	require.NoError(t, err)
	return New(Options{
		Briefings:      b,
		Maintenance:    m,
		Auth:           auth,
		SchedulerToken: "cron-secret",
		Store:          fakePinger{},
	})
}

func do(s *Server, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestSendMessage(t *testing.T) {
	var gotClient, gotMessage, gotSession string
	b := &MockBriefings{
		SendFunc: func(_ context.Context, clientID, message, sessionID string) (*briefing.TurnResult, error) {
			gotClient, gotMessage, gotSession = clientID, message, sessionID
			return &briefing.TurnResult{Reply: "When is it due?", MissingFields: []string{"deadline"}}, nil
		},
	}
	s := newTestServer(t, b, &MockMaintenance{})

	w := do(s, http.MethodPost, "/api/v1/briefings/messages", "client-token",
		map[string]string{"message": "I need a logo", "sessionId": "sess-1"}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "client-1", gotClient)
	assert.Equal(t, "I need a logo", gotMessage)
	assert.Equal(t, "sess-1", gotSession)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "When is it due?", resp["assistantMessage"])
	assert.Equal(t, false, resp["isComplete"])
}

func TestSendMessage_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", nimerrors.NewValidation("Send", "message must not be empty"), http.StatusBadRequest},
		{"not found", nimerrors.NewNotFound("GetOrCreate", "briefing session not found"), http.StatusNotFound},
		{"internal", nimerrors.NewInternal("AppendTurn", "failed to generate reply", nimerrors.New("secret detail")), http.StatusInternalServerError},
		{"untyped", nimerrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &MockBriefings{
				SendFunc: func(context.Context, string, string, string) (*briefing.TurnResult, error) {
					return nil, tt.err
				},
			}
			s := newTestServer(t, b, &MockMaintenance{})
			w := do(s, http.MethodPost, "/api/v1/briefings/messages", "client-token", map[string]string{"message": "x"}, nil)
			assert.Equal(t, tt.want, w.Code)
			assert.NotContains(t, w.Body.String(), "secret detail")
		})
	}
}

func TestSendMessage_BadBody(t *testing.T) {
	s := newTestServer(t, &MockBriefings{}, &MockMaintenance{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/briefings/messages", bytes.NewBufferString("not json"))
	req.Header.Set("Authorization", "Bearer client-token")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBriefings_Unauthenticated(t *testing.T) {
	s := newTestServer(t, &MockBriefings{}, &MockMaintenance{})

	tests := []struct {
		name, method, path, token string
	}{
		{"send without token", http.MethodPost, "/api/v1/briefings/messages", ""},
		{"active with bad token", http.MethodGet, "/api/v1/briefings/active", "nope"},
		{"abandon without token", http.MethodPost, "/api/v1/briefings/abandon", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, tt.method, tt.path, tt.token, nil, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestGetActive_NullWhenNone(t *testing.T) {
	s := newTestServer(t, &MockBriefings{}, &MockMaintenance{})

	w := do(s, http.MethodGet, "/api/v1/briefings/active", "client-token", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"session": null}`, w.Body.String())
}

func TestAbandon(t *testing.T) {
	var abandoned string
	b := &MockBriefings{AbandonFunc: func(_ context.Context, clientID string) error {
		abandoned = clientID
		return nil
	}}
	s := newTestServer(t, b, &MockMaintenance{})

	w := do(s, http.MethodPost, "/api/v1/briefings/abandon", "client-token", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "client-1", abandoned)
}

func TestMaintenance_Access(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		headers map[string]string
		want    int
	}{
		{"no credentials", "", nil, http.StatusUnauthorized},
		{"client role", "client-token", nil, http.StatusForbidden},
		{"wrong scheduler token", "", map[string]string{SchedulerTokenHeader: "guess"}, http.StatusUnauthorized},
		{"scheduler token", "", map[string]string{SchedulerTokenHeader: "cron-secret"}, http.StatusOK},
		{"admin role", "admin-token", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockMaintenance{}
			s := newTestServer(t, &MockBriefings{}, m)
			w := do(s, http.MethodPost, "/api/v1/maintenance/tasks/flag-stale-jobs/run", tt.token, nil, tt.headers)
			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusOK {
				assert.Equal(t, 0, m.ran, "task must not run without access")
			}
		})
	}
}

func TestMaintenance_RunTaskErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown task", nimerrors.NewValidation("RunTask", `unknown maintenance task "x"`), http.StatusBadRequest},
		{"task failure", nimerrors.NewTaskError("flag-stale-jobs", "task failed", nimerrors.New("locked")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockMaintenance{RunFunc: func(context.Context, string) (*maintenance.Summary, error) {
				return nil, tt.err
			}}
			s := newTestServer(t, &MockBriefings{}, m)
			w := do(s, http.MethodPost, "/api/v1/maintenance/tasks/x/run", "admin-token", nil, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestMaintenance_RunAllAndList(t *testing.T) {
	s := newTestServer(t, &MockBriefings{}, &MockMaintenance{})

	w := do(s, http.MethodPost, "/api/v1/maintenance/run", "admin-token", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var runAll struct {
		Results map[string]map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runAll))
	assert.Len(t, runAll.Results, 2)
	assert.Equal(t, "disk I/O error", runAll.Results[maintenance.TaskSyncWorkerJobCounts]["error"])

	w = do(s, http.MethodGet, "/api/v1/maintenance/tasks", "", nil, map[string]string{SchedulerTokenHeader: "cron-secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), maintenance.TaskFlagStaleJobs)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &MockBriefings{}, &MockMaintenance{})
	w := do(s, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	down := New(Options{Store: fakePinger{err: nimerrors.New("closed")}})
	w = do(down, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewHealthServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hs := NewHealthServer(ctx, fakePinger{}, nil)
	resp, err := hs.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	hs = NewHealthServer(ctx, fakePinger{err: nimerrors.New("closed")}, nil)
	resp, err = hs.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestNewTokenAuthenticator(t *testing.T) {
	a, err := NewTokenAuthenticator(map[string]string{"t1": "alice", "t2": "ops:Admin"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer t1")
	id, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, &Identity{ID: "alice", Role: RoleClient}, id)

	req.Header.Set("Authorization", "Bearer t2")
	id, err = a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, id.Role)

	req.Header.Set("Authorization", "Basic abc")
	_, err = a.Authenticate(req)
	assert.Equal(t, nimerrors.KindUnauthorized, nimerrors.KindOf(err))

	_, err = NewTokenAuthenticator(map[string]string{"t": ":admin"})
	assert.True(t, nimerrors.IsConfigError(err))
}
