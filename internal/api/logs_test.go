package api

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/tonelist/internal/logbuffer"
)

func withLogs(t *testing.T, secret []byte) (*testEnv, *logbuffer.Buffer) {
	t.Helper()
	env := newTestEnv(t, secret, nil)
	buf := logbuffer.New(10)
	buf.Add(logbuffer.LogEntry{Level: "info", Message: "session ready", Component: "lavalink"})
	buf.Add(logbuffer.LogEntry{Level: "warn", Message: "voice connection dropped", Component: "voice", GuildID: "g1"})
	env.api.SetLogBuffer(buf)
	r := chi.NewRouter()
	env.api.Routes(r)
	env.router = r
	return env, buf
}

func TestLogsEndpoint(t *testing.T) {
	env, _ := withLogs(t, nil)

	tests := []struct {
		path   string
		status int
		count  int
	}{
		{"/api/v1/logs", http.StatusOK, 2},
		{"/api/v1/logs?level=warn", http.StatusOK, 1},
		{"/api/v1/logs?component=lavalink", http.StatusOK, 1},
		{"/api/v1/logs?guild=g2", http.StatusOK, 0},
		{"/api/v1/logs?limit=1", http.StatusOK, 1},
		{"/api/v1/logs?level=loud", http.StatusBadRequest, 0},
		{"/api/v1/logs?limit=-3", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tt.path, "", "")
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			body := decode[struct {
				Entries []logbuffer.LogEntry `json:"entries"`
			}](t, rr)
			if len(body.Entries) != tt.count {
				t.Errorf("got %d entries, want %d", len(body.Entries), tt.count)
			}
		})
	}
}

func TestLogsRequireOperatorToken(t *testing.T) {
	env, _ := withLogs(t, []byte("test-secret"))

	if rr := env.do(t, http.MethodGet, "/api/v1/logs", "", env.token(t, "u1", "g1")); rr.Code != http.StatusForbidden {
		t.Errorf("guild token: status %d, want 403", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/v1/logs", "", env.token(t, "ops", "*")); rr.Code != http.StatusOK {
		t.Errorf("operator token: status %d, want 200", rr.Code)
	}
}

func TestLogsDisabledWithoutBuffer(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if rr := env.do(t, http.MethodGet, "/api/v1/logs", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}
