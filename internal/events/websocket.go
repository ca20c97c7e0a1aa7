package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketFollowerConfig holds configuration for following a service's
// /v1/events stream.
type WebsocketFollowerConfig struct {
	// BaseURL is the time log service URL (e.g., "http://localhost:8787")
	BaseURL string

	// APIKey is sent as a bearer token when set
	APIKey string

	// JobID limits the stream to one job. Empty follows every job.
	JobID string

	// Reconnect keeps following after the connection drops
	Reconnect bool

	// DebugFunc is an optional callback for debug logging
	DebugFunc func(format string, args ...any)
}

// WebsocketFollower reads events from a running service and hands them to
// a Publisher.
type WebsocketFollower struct {
	cfg        WebsocketFollowerConfig
	wsURL      string
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewWebsocketFollower validates cfg and builds the stream URL.
func NewWebsocketFollower(cfg WebsocketFollowerConfig) (*WebsocketFollower, error) {
	if cfg.JobID != "" && !jobIDPattern.MatchString(cfg.JobID) {
		return nil, fmt.Errorf("invalid job ID %q", cfg.JobID)
	}
	wsURL, err := eventsURL(cfg.BaseURL, cfg.JobID)
	if err != nil {
		return nil, err
	}
	return &WebsocketFollower{
		cfg:        cfg,
		wsURL:      wsURL,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}, nil
}

// eventsURL converts the HTTP base URL to the websocket events endpoint
func eventsURL(base, jobID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid service URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid service URL %q: scheme must be http or https", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/events"
	if jobID != "" {
		u.RawQuery = url.Values{"job": {jobID}}.Encode()
	}
	return u.String(), nil
}

func (f *WebsocketFollower) debug(format string, args ...any) {
	if f.cfg.DebugFunc != nil {
		f.cfg.DebugFunc(format, args...)
	}
}

// URL returns the websocket URL being followed.
func (f *WebsocketFollower) URL() string {
	return f.wsURL
}

// Start forwards events to out until ctx is cancelled or, without
// Reconnect, the server closes the stream. A normal closure returns nil.
func (f *WebsocketFollower) Start(ctx context.Context, out Publisher) error {
	backoff := f.minBackoff
	for {
		err := f.run(ctx, out, func() { backoff = f.minBackoff })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !f.cfg.Reconnect {
			return err
		}
		f.debug("ws: stream ended (retrying in %v): %v", backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

func (f *WebsocketFollower) run(ctx context.Context, out Publisher, connected func()) error {
	headers := http.Header{}
	if f.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	f.debug("ws: connecting to %s", f.wsURL)
	conn, resp, err := dialer.DialContext(ctx, f.wsURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connection failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connection failed: %w", err)
	}
	defer conn.Close()
	connected()

	// unblock ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}
		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			f.debug("ws: dropping malformed event: %v", err)
			continue
		}
		if err := out.Publish(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
			f.debug("ws: forwarding %s event failed: %v", e.Type, err)
		}
	}
}
