package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/tonelist/internal/voice"
)

type fakeGateway struct {
	mu      sync.Mutex
	joins   []string
	leaves  []string
	missing error
}

func (g *fakeGateway) JoinVoice(_ context.Context, guildID, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joins = append(g.joins, guildID+"/"+channelID)
	return nil
}

func (g *fakeGateway) LeaveVoice(_ context.Context, guildID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaves = append(g.leaves, guildID)
	return nil
}

func (g *fakeGateway) CheckVoiceChannel(string, string) error { return g.missing }

type recorded struct {
	method, path, auth string
	body               map[string]any
}

// node is a fake Lavalink server.
type node struct {
	t      *testing.T
	srv    *httptest.Server
	mu     sync.Mutex
	reqs   []recorded
	header http.Header
	conns  chan *ws.Conn
	stop   chan struct{}
}

func newNode(t *testing.T) *node {
	n := &node{t: t, conns: make(chan *ws.Conn, 1), stop: make(chan struct{})}
	n.srv = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.srv.Close)
	t.Cleanup(func() { close(n.stop) })
	return n
}

func (n *node) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v4/websocket" {
		n.mu.Lock()
		n.header = r.Header.Clone()
		n.mu.Unlock()
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			return
		}
		n.conns <- conn
		<-n.stop
		return
	}

	rec := recorded{method: r.Method, path: r.URL.RequestURI(), auth: r.Header.Get("Authorization")}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &rec.body)
	}
	n.mu.Lock()
	n.reqs = append(n.reqs, rec)
	n.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/v4/loadtracks"):
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"loadType":"track","data":`+trackJSON("a")+`}`)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPatch && strings.Contains(r.URL.Path, "/players/missing"):
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"status":404,"error":"Not Found","message":"Session not found"}`)
	default:
		_, _ = io.WriteString(w, `{}`)
	}
}

func (n *node) requests() []recorded {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]recorded(nil), n.reqs...)
}

func (n *node) client(gw Gateway) *Client {
	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(n.srv.URL, "http://"))
	port, _ := strconv.Atoi(portStr)
	cfg := DefaultConfig(host, port, "secret")
	cfg.UserID = "bot"
	cfg.ReconnectInterval = 20 * time.Millisecond
	return New(cfg, gw, zerolog.Nop())
}

// connect runs the client and returns the server side of its websocket.
func (n *node) connect(t *testing.T, c *Client) *ws.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case conn := <-n.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func writeFrame(t *testing.T, conn *ws.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, ws.MessageText, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func waitReady(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !c.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("client never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func nextSignal(t *testing.T, tr voice.Transport) voice.Signal {
	t.Helper()
	select {
	case sig := <-tr.Signals():
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("no signal")
		return voice.Signal{}
	}
}

func TestClientHandshakeHeaders(t *testing.T) {
	n := newNode(t)
	c := n.client(&fakeGateway{})
	conn := n.connect(t, c)
	writeFrame(t, conn, `{"op":"ready","resumed":false,"sessionId":"s1"}`)
	waitReady(t, c)

	n.mu.Lock()
	h := n.header
	n.mu.Unlock()
	if h.Get("Authorization") != "secret" || h.Get("User-Id") != "bot" || h.Get("Client-Name") != "tonelist" {
		t.Errorf("handshake headers = %v", h)
	}
}

func TestLoadTracks(t *testing.T) {
	n := newNode(t)
	c := n.client(&fakeGateway{})
	res, err := c.LoadTracks(context.Background(), "ytsearch:a b")
	if err != nil {
		t.Fatalf("LoadTracks: %v", err)
	}
	if res.LoadType != LoadTrack {
		t.Errorf("load type = %q", res.LoadType)
	}
	reqs := n.requests()
	if len(reqs) != 1 || reqs[0].path != "/v4/loadtracks?identifier=ytsearch%3Aa+b" || reqs[0].auth != "secret" {
		t.Errorf("request = %+v", reqs)
	}
}

func TestDialRequiresSession(t *testing.T) {
	n := newNode(t)
	c := n.client(&fakeGateway{})
	if _, err := c.Dial(context.Background(), "g1", "vc1"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestDialReportsMissingChannel(t *testing.T) {
	n := newNode(t)
	c := n.client(&fakeGateway{missing: voice.ErrChannelNotFound})
	if _, err := c.Dial(context.Background(), "g1", "vc1"); !errors.Is(err, voice.ErrChannelNotFound) {
		t.Fatalf("err = %v, want ErrChannelNotFound", err)
	}
}

func TestLinkLifecycle(t *testing.T) {
	n := newNode(t)
	gw := &fakeGateway{}
	c := n.client(gw)
	conn := n.connect(t, c)
	writeFrame(t, conn, `{"op":"ready","sessionId":"s1"}`)
	waitReady(t, c)

	tr, err := c.Dial(context.Background(), "g1", "vc1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sig := nextSignal(t, tr); sig.Kind != voice.SignalConnecting {
		t.Fatalf("first signal = %v", sig.Kind)
	}
	if len(gw.joins) != 1 || gw.joins[0] != "g1/vc1" {
		t.Errorf("joins = %v", gw.joins)
	}

	// Other users' voice states are ignored.
	c.HandleVoiceStateUpdate("g1", "someone", "vc1", "other")
	c.HandleVoiceServerUpdate("g1", "tok", "eu.discord.media")
	c.HandleVoiceStateUpdate("g1", "bot", "vc1", "vs1")
	if sig := nextSignal(t, tr); sig.Kind != voice.SignalReady {
		t.Fatalf("signal = %v, want ready", sig.Kind)
	}

	if err := tr.Play(context.Background(), trackModel("a")); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := tr.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := tr.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(gw.leaves) != 1 {
		t.Errorf("leaves = %v", gw.leaves)
	}

	reqs := n.requests()
	if len(reqs) != 4 {
		t.Fatalf("got %d requests: %+v", len(reqs), reqs)
	}
	voiceBody, _ := reqs[0].body["voice"].(map[string]any)
	if reqs[0].method != http.MethodPatch || voiceBody["sessionId"] != "vs1" || voiceBody["token"] != "tok" {
		t.Errorf("voice update = %+v", reqs[0])
	}
	play, _ := reqs[1].body["track"].(map[string]any)
	if play["encoded"] != "enc-a" {
		t.Errorf("play body = %+v", reqs[1].body)
	}
	stop, _ := reqs[2].body["track"].(map[string]any)
	if v, ok := stop["encoded"]; !ok || v != nil {
		t.Errorf("stop body = %+v", reqs[2].body)
	}
	if reqs[3].method != http.MethodDelete || reqs[3].path != "/v4/sessions/s1/players/g1" {
		t.Errorf("destroy = %+v", reqs[3])
	}

	// A closed link no longer receives events.
	writeFrame(t, conn, `{"op":"event","type":"TrackStartEvent","guildId":"g1","track":{"encoded":"enc-a"}}`)
	if c.link("g1") != nil {
		t.Error("closed link still registered")
	}
}

func TestSessionLossDisconnectsLinks(t *testing.T) {
	n := newNode(t)
	c := n.client(&fakeGateway{})
	conn := n.connect(t, c)
	writeFrame(t, conn, `{"op":"ready","sessionId":"s1"}`)
	waitReady(t, c)

	tr, err := c.Dial(context.Background(), "g1", "vc1")
	if err != nil {
		t.Fatal(err)
	}
	conn.Close(ws.StatusGoingAway, "restart")

	sig := nextSignal(t, tr)
	if sig.Kind != voice.SignalDisconnected {
		t.Fatalf("signal = %v, want disconnected", sig.Kind)
	}
	if c.Ready() {
		t.Error("client still ready after losing its session")
	}

	// The client reconnects on its own.
	select {
	case <-n.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not reconnect")
	}
}

func TestUpdatePlayerError(t *testing.T) {
	n := newNode(t)
	c := n.client(&fakeGateway{})
	conn := n.connect(t, c)
	writeFrame(t, conn, `{"op":"ready","sessionId":"s1"}`)
	waitReady(t, c)

	err := c.updatePlayer(context.Background(), "missing", playerUpdate{})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Status != http.StatusNotFound || reqErr.Message != "Session not found" {
		t.Fatalf("err = %v", err)
	}
}

func TestRedialAfterCloseIgnoresStaleLeave(t *testing.T) {
	n := newNode(t)
	gw := &fakeGateway{}
	c := n.client(gw)
	conn := n.connect(t, c)
	writeFrame(t, conn, `{"op":"ready","sessionId":"s1"}`)
	waitReady(t, c)

	first, err := c.Dial(context.Background(), "g1", "vc1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := first.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	nextSignal(t, first)
	if err := first.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := c.Dial(context.Background(), "g1", "vc1")
	if err != nil {
		t.Fatalf("redial: %v", err)
	}
	if err := second.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sig := nextSignal(t, second); sig.Kind != voice.SignalConnecting {
		t.Fatalf("first signal = %v, want connecting", sig.Kind)
	}

	// Discord acknowledges the first link's leave after the rejoin went out.
	c.HandleVoiceStateUpdate("g1", "bot", "", "")
	writeFrame(t, conn, `{"op":"event","type":"WebSocketClosedEvent","guildId":"g1","code":4014,"reason":"disconnected","byRemote":true}`)
	// let the read loop route the frame before credentials arrive
	time.Sleep(50 * time.Millisecond)
	c.HandleVoiceServerUpdate("g1", "tok", "eu.discord.media")
	c.HandleVoiceStateUpdate("g1", "bot", "vc1", "vs2")

	if sig := nextSignal(t, second); sig.Kind != voice.SignalReady {
		t.Fatalf("signal = %v, want ready", sig.Kind)
	}
	if len(gw.joins) != 2 || len(gw.leaves) != 1 {
		t.Errorf("joins = %v, leaves = %v", gw.joins, gw.leaves)
	}

	reqs := n.requests()
	if len(reqs) != 2 || reqs[0].method != http.MethodDelete || reqs[1].method != http.MethodPatch {
		t.Fatalf("requests = %+v, want destroy then voice update", reqs)
	}
	voiceBody, _ := reqs[1].body["voice"].(map[string]any)
	if voiceBody["sessionId"] != "vs2" {
		t.Errorf("voice update = %+v", reqs[1].body)
	}
}
