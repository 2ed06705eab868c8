/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/tonelist/internal/telemetry"
	"github.com/friendsincode/tonelist/internal/voice"
)

// ErrNotReady is returned by player calls before the node sent its ready op.
var ErrNotReady = errors.New("lavalink session not ready")

// RequestError is a non-2xx REST response.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("lavalink returned %d: %s", e.Status, e.Message)
}

// Gateway performs the Discord side of joining voice.
type Gateway interface {
	// JoinVoice asks Discord to move the bot into channelID.
	JoinVoice(ctx context.Context, guildID, channelID string) error
	LeaveVoice(ctx context.Context, guildID string) error
	// CheckVoiceChannel returns voice.ErrGuildNotFound or
	// voice.ErrChannelNotFound when the target does not exist.
	CheckVoiceChannel(guildID, channelID string) error
}

// Config holds client configuration
type Config struct {
	Host     string
	Port     int
	Password string
	Secure   bool
	// UserID is the bot's Discord user id, sent as User-Id.
	UserID            string
	ClientName        string
	ReconnectInterval time.Duration
	RequestTimeout    time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig(host string, port int, password string) *Config {
	return &Config{
		Host:              host,
		Port:              port,
		Password:          password,
		ClientName:        "tonelist",
		ReconnectInterval: 5 * time.Second,
		RequestTimeout:    10 * time.Second,
	}
}

// Client talks to one Lavalink node. It implements voice.Dialer: every dialed
// guild gets a Link that receives the node's player events.
type Client struct {
	cfg     Config
	baseURL string
	wsURL   string
	http    *http.Client
	gateway Gateway
	logger  zerolog.Logger

	mu        sync.RWMutex
	user      string
	sessionID string
	links     map[string]*Link
}

// New creates a new Lavalink client
func New(cfg *Config, gateway Gateway, logger zerolog.Logger) *Client {
	httpScheme, wsScheme := "http", "ws"
	if cfg.Secure {
		httpScheme, wsScheme = "https", "wss"
	}
	hostPort := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	return &Client{
		cfg:     *cfg,
		baseURL: httpScheme + "://" + hostPort,
		wsURL:   wsScheme + "://" + hostPort + "/v4/websocket",
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		gateway: gateway,
		logger:  logger.With().Str("component", "lavalink").Logger(),
		user:    cfg.UserID,
		links:   make(map[string]*Link),
	}
}

// SetUserID sets the bot user id once Discord reported it. Call before Run.
func (c *Client) SetUserID(id string) {
	c.mu.Lock()
	c.user = id
	c.mu.Unlock()
}

func (c *Client) userID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Ready reports whether the node has assigned a session.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID != ""
}

// Run keeps the websocket session open until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.listen(ctx)
		if ctx.Err() != nil {
			c.lost("shutting down")
			return nil
		}
		c.logger.Warn().Err(err).Dur("retry_in", c.cfg.ReconnectInterval).Msg("lavalink connection lost")
		c.lost("lavalink connection lost")
		telemetry.LavalinkReconnects.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

func (c *Client) listen(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", c.cfg.Password)
	header.Set("User-Id", c.userID())
	header.Set("Client-Name", c.cfg.ClientName)

	c.logger.Info().Str("url", c.wsURL).Msg("connecting to lavalink")
	conn, _, err := ws.Dial(ctx, c.wsURL, &ws.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial lavalink: %w", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read lavalink: %w", err)
		}
		c.handleMessage(data)
	}
}

// lost forgets the session and tells every link its player is gone.
func (c *Client) lost(reason string) {
	c.mu.Lock()
	had := c.sessionID != ""
	c.sessionID = ""
	links := make([]*Link, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}
	c.mu.Unlock()

	if had {
		telemetry.LavalinkConnected.Set(0)
	}
	for _, l := range links {
		l.drop(reason)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("malformed lavalink message")
		return
	}

	switch msg.Op {
	case opReady:
		c.mu.Lock()
		c.sessionID = msg.SessionID
		c.mu.Unlock()
		telemetry.LavalinkConnected.Set(1)
		c.logger.Info().Str("session_id", msg.SessionID).Bool("resumed", msg.Resumed).Msg("lavalink session ready")
	case opPlayerUpdate:
		if msg.State != nil && !msg.State.Connected {
			c.logger.Debug().Str("guild_id", msg.GuildID).Msg("player reports voice not connected")
		}
	case opEvent:
		if l := c.link(msg.GuildID); l != nil {
			l.handleEvent(msg)
		}
	case opStats:
	default:
		c.logger.Debug().Str("op", msg.Op).Msg("unhandled lavalink op")
	}
}

func (c *Client) link(guildID string) *Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.links[guildID]
}

// Dial implements voice.Dialer.
func (c *Client) Dial(_ context.Context, guildID, channelID string) (voice.Transport, error) {
	if err := c.gateway.CheckVoiceChannel(guildID, channelID); err != nil {
		return nil, err
	}
	if !c.Ready() {
		return nil, ErrNotReady
	}

	l := newLink(c, guildID, channelID)
	c.mu.Lock()
	c.links[guildID] = l
	c.mu.Unlock()
	return l, nil
}

func (c *Client) unregister(l *Link) {
	c.mu.Lock()
	if c.links[l.guildID] == l {
		delete(c.links, l.guildID)
	}
	c.mu.Unlock()
}

// HandleVoiceServerUpdate forwards Discord's voice server update.
func (c *Client) HandleVoiceServerUpdate(guildID, token, endpoint string) {
	if l := c.link(guildID); l != nil {
		l.serverUpdate(token, endpoint)
	}
}

// HandleVoiceStateUpdate forwards Discord's voice state update. Only the
// bot's own state is relevant.
func (c *Client) HandleVoiceStateUpdate(guildID, userID, channelID, sessionID string) {
	if userID != c.userID() {
		return
	}
	if l := c.link(guildID); l != nil {
		l.stateUpdate(channelID, sessionID)
	}
}

// LoadTracks resolves an identifier on the node.
func (c *Client) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	var res LoadResult
	path := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := c.do(ctx, http.MethodGet, "loadtracks", path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) playerPath(guildID string) (string, error) {
	c.mu.RLock()
	sid := c.sessionID
	c.mu.RUnlock()
	if sid == "" {
		return "", ErrNotReady
	}
	return "/v4/sessions/" + sid + "/players/" + guildID, nil
}

func (c *Client) updatePlayer(ctx context.Context, guildID string, update playerUpdate) error {
	path, err := c.playerPath(guildID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, "update_player", path, update, nil)
}

func (c *Client) destroyPlayer(ctx context.Context, guildID string) error {
	path, err := c.playerPath(guildID)
	if err != nil {
		return err
	}
	err = c.do(ctx, http.MethodDelete, "destroy_player", path, nil, nil)
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		telemetry.LavalinkRequestDuration.WithLabelValues(endpoint, result).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", c.cfg.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		msg := eb.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &RequestError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}
