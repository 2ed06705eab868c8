package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/tonelist/internal/events"
)

func TestParseEventTypes(t *testing.T) {
	got := parseEventTypes("now_playing, queue.updated,bogus,now_playing,")
	want := []events.EventType{events.EventNowPlaying, events.EventQueueUpdated}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseEventTypes() = %v, want %v", got, want)
	}
	if parseEventTypes("") != nil {
		t.Error("empty input should yield nil")
	}
}

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=now_playing&guild=g1"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for env.bus.Subscribers(events.EventNowPlaying) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	env.bus.Publish(events.EventNowPlaying, events.Payload{"guild_id": "g2", "title": "hidden"})
	env.bus.Publish(events.EventNowPlaying, events.Payload{"guild_id": "g1", "title": "Song a"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != events.EventNowPlaying || ev.Payload["title"] != "Song a" {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventsRequiresAuthWhenEnabled(t *testing.T) {
	env := newTestEnv(t, []byte("test-secret"), nil)
	rr := env.do(t, "GET", "/api/v1/events", "", "")
	if rr.Code != 401 {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}
