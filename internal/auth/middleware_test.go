package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddleware_AcceptsBearerToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{
		UserID: "u1",
		Guilds: []string{"g1"},
	}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims == nil {
			t.Fatalf("expected claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/guilds/g1/queue", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	Middleware(secret)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	secret := []byte("test-secret")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})

	for name, header := range map[string]string{
		"missing": "",
		"garbage": "Bearer not-a-jwt",
		"scheme":  "Basic dTE6cGFzcw==",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/guilds/g1/queue", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			Middleware(secret)(next).ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if rr.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestMiddleware_RejectsQueryToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{UserID: "u1", Guilds: []string{"g1"}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/guilds/g1/queue?token="+token, nil)
	rr := httptest.NewRecorder()

	Middleware(secret)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for query token auth, got %d", rr.Code)
	}
}

func TestMiddleware_AcceptsQueryTokenForEventsWebSocketUpgrade(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{UserID: "u1", Guilds: []string{AllGuilds}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims == nil {
			t.Fatalf("expected claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?types=now_playing&token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()

	Middleware(secret)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for websocket query token auth, got %d body=%s", rr.Code, rr.Body.String())
	}
}

type memberFunc func(ctx context.Context, guildID, userID string) (bool, error)

func (f memberFunc) IsMember(ctx context.Context, guildID, userID string) (bool, error) {
	return f(ctx, guildID, userID)
}

func TestAuthorize(t *testing.T) {
	members := memberFunc(func(_ context.Context, guildID, userID string) (bool, error) {
		switch {
		case guildID == "broken":
			return false, errors.New("discord unavailable")
		case userID == "u1" && guildID != "g9":
			return true, nil
		}
		return false, nil
	})

	tests := []struct {
		name    string
		claims  *Claims
		guild   string
		checker MembershipChecker
		want    error
	}{
		{"granted member", &Claims{UserID: "u1", Guilds: []string{"g1"}}, "g1", members, nil},
		{"guild not in token", &Claims{UserID: "u1", Guilds: []string{"g1"}}, "g2", members, ErrForbidden},
		{"left the guild", &Claims{UserID: "u1", Guilds: []string{"g9"}}, "g9", members, ErrNotMember},
		{"wildcard skips membership", &Claims{UserID: "svc", Guilds: []string{AllGuilds}}, "g9", members, nil},
		{"no checker", &Claims{UserID: "u2", Guilds: []string{"g1"}}, "g1", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(context.Background(), tt.claims, tt.guild, tt.checker)
			if !errors.Is(err, tt.want) {
				t.Errorf("Authorize() = %v, want %v", err, tt.want)
			}
		})
	}

	err := Authorize(context.Background(), &Claims{UserID: "u1", Guilds: []string{"broken"}}, "broken", members)
	if err == nil || errors.Is(err, ErrForbidden) {
		t.Errorf("expected checker error, got %v", err)
	}
}
