package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/friendsincode/tonelist/internal/auth"
	"github.com/friendsincode/tonelist/internal/logbuffer"
)

const maxLogLimit = 1000

// handleLogs returns recent log entries. Only tokens covering every guild may
// read them.
func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.authEnabled() {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok || !claims.CanAccess(auth.AllGuilds) {
			writeError(w, http.StatusForbidden, "forbidden", "Logs require an operator token")
			return
		}
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Component: q.Get("component"),
		GuildID:   q.Get("guild"),
		Search:    q.Get("search"),
		Limit:     100,
	}
	if raw := q.Get("level"); raw != "" {
		lvl, err := zerolog.ParseLevel(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "Unknown log level")
			return
		}
		params.MinLevel = lvl
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_argument", "limit must be a positive integer")
			return
		}
		params.Limit = min(n, maxLogLimit)
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": a.logs.Query(params)})
}
