package cytube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-json-experiment/json"
)

// Discover asks a Cytube server which socket server hosts a channel.
// Secure servers are preferred.
func Discover(ctx context.Context, client *http.Client, server, channel string) (string, error) {
	u := strings.TrimSuffix(server, "/") + "/socketconfig/" + url.PathEscape(channel) + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("couldn't make socket config request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("couldn't get socket config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("couldn't get socket config: %s", resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("couldn't read socket config: %w", err)
	}
	var cfg struct {
		Servers []struct {
			URL    string `json:"url"`
			Secure bool   `json:"secure"`
		} `json:"servers"`
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return "", fmt.Errorf("couldn't decode socket config: %w", err)
	}
	var r string
	for _, s := range cfg.Servers {
		if s.Secure {
			return s.URL, nil
		}
		if r == "" {
			r = s.URL
		}
	}
	if r == "" {
		return "", errors.New("socket config lists no servers")
	}
	return r, nil
}

// Conn is a socket.io connection to a Cytube socket server.
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger
}

// Dial connects to a socket server as returned by [Discover] and completes
// the Engine.IO and socket.io handshakes.
func Dial(ctx context.Context, server string, log *slog.Logger) (*Conn, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse socket server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/socket.io/"
	u.RawQuery = "EIO=4&transport=websocket"
	ws, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't dial socket server: %w", err)
	}
	ws.SetReadLimit(1 << 22)
	c := &Conn{ws: ws, log: log}
	typ, b, err := ws.Read(ctx)
	if err != nil {
		ws.CloseNow()
		return nil, fmt.Errorf("couldn't read open packet: %w", err)
	}
	if typ != websocket.MessageText || len(b) == 0 || b[0] != '0' {
		ws.CloseNow()
		return nil, fmt.Errorf("expected open packet, got %q", b)
	}
	log.DebugContext(ctx, "engine.io open", slog.String("packet", string(b[1:])))
	if err := ws.Write(ctx, websocket.MessageText, []byte("40")); err != nil {
		ws.CloseNow()
		return nil, fmt.Errorf("couldn't connect namespace: %w", err)
	}
	return c, nil
}

// Read returns the next event from the server. It answers pings and skips
// control packets and events the bot does not handle.
func (c *Conn) Read(ctx context.Context) (Event, error) {
	for {
		typ, b, err := c.ws.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("couldn't read from socket: %w", err)
		}
		if typ != websocket.MessageText || len(b) == 0 {
			continue
		}
		switch {
		case b[0] == '2':
			// Pings carry an optional payload that the pong echoes.
			b[0] = '3'
			if err := c.ws.Write(ctx, websocket.MessageText, b); err != nil {
				return nil, fmt.Errorf("couldn't answer ping: %w", err)
			}
		case b[0] == '1':
			return nil, io.EOF
		case bytes.HasPrefix(b, []byte("40")):
			c.log.DebugContext(ctx, "socket.io connected", slog.String("packet", string(b[2:])))
		case bytes.HasPrefix(b, []byte("41")), bytes.HasPrefix(b, []byte("44")):
			return nil, fmt.Errorf("server disconnected namespace: %s", b)
		case bytes.HasPrefix(b, []byte("42")):
			ev, err := Decode(b[2:])
			switch {
			case err == nil:
				return ev, nil
			case errors.Is(err, ErrUnknownEvent):
				c.log.DebugContext(ctx, "unhandled event", slog.String("packet", abbrev(b, 80)))
			default:
				c.log.WarnContext(ctx, "bad event", slog.Any("err", err), slog.String("packet", abbrev(b, 200)))
			}
		default:
			c.log.DebugContext(ctx, "unhandled packet", slog.String("packet", abbrev(b, 80)))
		}
	}
}

// Send sends a frame. It is safe to call concurrently with Read.
func (c *Conn) Send(ctx context.Context, f Frame) error {
	b, err := f.Encode()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("couldn't send %s: %w", f.Event, err)
	}
	return nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// CloseNow closes the connection without a closing handshake.
func (c *Conn) CloseNow() error {
	return c.ws.CloseNow()
}

func abbrev(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
