package api

import (
	"encoding/json"
	"net/http"
	"testing"
)

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      json.RawMessage `json:"id"`
}

func TestRPCSingleCalls(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		id   string
	}{
		{"join", `{"jsonrpc":"2.0","id":1,"method":"join","params":{"guildId":"g1","channelId":"vc1"}}`, 0, "1"},
		{"parse error", `{"jsonrpc":"2.0",`, -32700, "null"},
		{"not an object", `42`, -32600, "null"},
		{"wrong version", `{"jsonrpc":"1.0","id":"a","method":"join"}`, -32600, `"a"`},
		{"unknown method", `{"jsonrpc":"2.0","id":2,"method":"pause","params":{"guildId":"g1"}}`, -32601, "2"},
		{"bad params", `{"jsonrpc":"2.0","id":3,"method":"skip","params":"g1"}`, -32602, "3"},
		{"missing guild", `{"jsonrpc":"2.0","id":4,"method":"skip","params":{}}`, -32602, "4"},
		{"not connected", `{"jsonrpc":"2.0","id":5,"method":"leave","params":{"guildId":"g1"}}`, -32002, "5"},
		{"no params", `{"jsonrpc":"2.0","id":6,"method":"queue"}`, -32602, "6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			rr := env.do(t, http.MethodPost, "/api/v1/actions", tt.body, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}
			reply := decode[rpcReply](t, rr)
			if reply.JSONRPC != "2.0" {
				t.Errorf("jsonrpc = %q", reply.JSONRPC)
			}
			if string(reply.ID) != tt.id {
				t.Errorf("id = %s, want %s", reply.ID, tt.id)
			}
			if tt.code == 0 {
				if reply.Error != nil {
					t.Fatalf("unexpected error %+v", reply.Error)
				}
				if len(reply.Result) == 0 {
					t.Error("missing result")
				}
				return
			}
			if reply.Error == nil || reply.Error.Code != tt.code {
				t.Fatalf("error = %+v, want code %d", reply.Error, tt.code)
			}
			if reply.Error.Message == "" {
				t.Error("error without message")
			}
		})
	}
}

func TestRPCNotificationHasNoBody(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rr := env.do(t, http.MethodPost, "/api/v1/actions", `{"jsonrpc":"2.0","method":"join","params":{"guildId":"g1","channelId":"vc1"}}`, "")
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("status = %d body = %q, want 204 and empty", rr.Code, rr.Body.String())
	}
	if env.dialer.Count() != 1 {
		t.Error("notification was not executed")
	}
}

func TestRPCBatch(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	body := `[
		{"jsonrpc":"2.0","id":1,"method":"enqueue","params":{"guildId":"g1","channelId":"vc1","query":"a"}},
		{"jsonrpc":"2.0","method":"shuffle","params":{"guildId":"g1"}},
		{"jsonrpc":"2.0","id":2,"method":"remove","params":{"guildId":"g1","index":0}},
		{"bogus":true}
	]`
	rr := env.do(t, http.MethodPost, "/api/v1/actions", body, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	replies := decode[[]rpcReply](t, rr)
	if len(replies) != 3 {
		t.Fatalf("got %d replies, want 3: %s", len(replies), rr.Body.String())
	}
	if replies[0].Error != nil || string(replies[0].ID) != "1" {
		t.Errorf("enqueue reply = %+v", replies[0])
	}
	if replies[1].Error == nil || replies[1].Error.Code != -32010 {
		t.Errorf("remove reply = %+v, want cannot_remove_current", replies[1])
	}
	if replies[2].Error == nil || replies[2].Error.Code != -32600 {
		t.Errorf("bogus reply = %+v, want invalid request", replies[2])
	}
}

func TestRPCEmptyBatch(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rr := env.do(t, http.MethodPost, "/api/v1/actions", `[]`, "")
	reply := decode[rpcReply](t, rr)
	if reply.Error == nil || reply.Error.Code != -32600 {
		t.Fatalf("reply = %+v, want invalid request", reply)
	}
}

func TestRPCBatchOfNotifications(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rr := env.do(t, http.MethodPost, "/api/v1/actions", `[{"jsonrpc":"2.0","method":"queue","params":{"guildId":"g1"}}]`, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
}

func TestRPCGuildAccess(t *testing.T) {
	env := newTestEnv(t, []byte("test-secret"), nil)
	body := `{"jsonrpc":"2.0","id":1,"method":"queue","params":{"guildId":"g2"}}`

	rr := env.do(t, http.MethodPost, "/api/v1/actions", body, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/actions", body, env.token(t, "u1", "g1"))
	reply := decode[rpcReply](t, rr)
	if reply.Error == nil || reply.Error.Code != rpcForbidden {
		t.Fatalf("reply = %+v, want forbidden", reply)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/actions", body, env.token(t, "svc", "*"))
	reply = decode[rpcReply](t, rr)
	if reply.Error != nil {
		t.Fatalf("wildcard token rejected: %+v", reply.Error)
	}
}
