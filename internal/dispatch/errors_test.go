package dispatch

import (
	"errors"
	"net/http"
	"testing"

	"github.com/friendsincode/tonelist/internal/playback"
)

func TestSurfaceErrorsAreComplete(t *testing.T) {
	codes := map[string]playback.Kind{}
	rpc := map[int]playback.Kind{}
	for k := playback.Kind(0); k < playback.KindCount; k++ {
		se := surfaceErrors[k]
		if se == (SurfaceError{}) {
			t.Errorf("kind %s has no surface mapping", k)
			continue
		}
		if se.Status < 400 || se.Status > 599 {
			t.Errorf("kind %s: status %d is not an error", k, se.Status)
		}
		if se.Text == "" || se.Code == "" || se.RPCCode == 0 {
			t.Errorf("kind %s: incomplete mapping %+v", k, se)
		}
		if se.Code != k.String() {
			t.Errorf("kind %s: code %q does not match kind name", k, se.Code)
		}
		if prev, dup := codes[se.Code]; dup {
			t.Errorf("kinds %s and %s share code %q", prev, k, se.Code)
		}
		codes[se.Code] = k
		if prev, dup := rpc[se.RPCCode]; dup {
			t.Errorf("kinds %s and %s share rpc code %d", prev, k, se.RPCCode)
		}
		rpc[se.RPCCode] = k
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		rpc    int
	}{
		{"foreign error is internal", errors.New("boom"), http.StatusInternalServerError, RPCInternalError},
		{"invalid argument", &playback.Error{Kind: playback.KindInvalidArgument}, http.StatusBadRequest, RPCInvalidParams},
		{"already connected", &playback.Error{Kind: playback.KindAlreadyConnected}, http.StatusConflict, -32001},
		{"resolution failed", &playback.Error{Kind: playback.KindResolutionFailed}, http.StatusBadGateway, -32009},
		{"out of range kind", &playback.Error{Kind: playback.KindCount + 3}, http.StatusInternalServerError, RPCInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := Lookup(tt.err)
			if se.Status != tt.status || se.RPCCode != tt.rpc {
				t.Errorf("Lookup() = %+v, want status %d rpc %d", se, tt.status, tt.rpc)
			}
		})
	}
}

func TestTextHidesInternalCause(t *testing.T) {
	err := &playback.Error{Kind: playback.KindInternal, Op: "join", Err: errors.New("redis: connection refused")}
	if got := Text(err); got != "Internal error" {
		t.Errorf("Text() = %q", got)
	}
	err = &playback.Error{Kind: playback.KindInvalidArgument, Op: "remove", Err: errors.New("index is required")}
	if got := Text(err); got != "Invalid request: index is required" {
		t.Errorf("Text() = %q", got)
	}
}
