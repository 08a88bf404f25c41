package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukex/flowbot/pkg/models"
	"github.com/gorilla/websocket"
)

// EventNewMessage is the frame event carrying chat messages in both directions.
const EventNewMessage = "new_message"

const (
	defaultPingInterval = 25 * time.Second
	writeTimeout        = 10 * time.Second
)

// Frame is the envelope of every websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundPayload is the data of an outbound new_message frame.
type OutboundPayload struct {
	ChatID  string                 `json:"chatId"`
	Message models.OutboundMessage `json:"message"`
}

// WebsocketDialer connects to the gateway over a websocket, sending the credential
// as a bearer token in the handshake.
type WebsocketDialer struct {
	dialer       *websocket.Dialer
	pingInterval time.Duration
	logger       *slog.Logger
}

func NewWebsocketDialer(logger *slog.Logger) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultConfig().HandshakeTimeout,
		},
		pingInterval: defaultPingInterval,
		logger:       logger.With("module", "websocket"),
	}
}

// WithPingInterval sets how often pings are sent; the read deadline is twice that.
func (d *WebsocketDialer) WithPingInterval(interval time.Duration) *WebsocketDialer {
	d.pingInterval = interval

	return d
}

func (d *WebsocketDialer) Dial(ctx context.Context, url, credential string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	ws, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err)
		}

		return nil, err
	}

	conn := &wsConn{
		ws:       ws,
		logger:   d.logger,
		pongWait: 2 * d.pingInterval,
		done:     make(chan struct{}),
	}

	_ = ws.SetReadDeadline(time.Now().Add(conn.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(conn.pongWait))
	})

	go conn.keepalive(d.pingInterval)

	return conn, nil
}

type wsConn struct {
	ws       *websocket.Conn
	logger   *slog.Logger
	pongWait time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) ReadEvent(ctx context.Context) (models.InboundEvent, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return models.InboundEvent{}, err
		}

		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.DebugContext(ctx, "Ignoring malformed frame", "error", err)

			continue
		}

		if frame.Event != EventNewMessage {
			continue
		}

		var evt models.InboundEvent
		if err := json.Unmarshal(frame.Data, &evt); err != nil {
			c.logger.WarnContext(ctx, "Ignoring undecodable message event", "error", err)

			continue
		}

		return evt, nil
	}
}

func (c *wsConn) SendMessage(ctx context.Context, chatID string, msg models.OutboundMessage) error {
	data, err := json.Marshal(OutboundPayload{ChatID: chatID, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(deadline)

	return c.ws.WriteJSON(Frame{Event: EventNewMessage, Data: data})
}

func (c *wsConn) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()

			if err != nil {
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()

		err = c.ws.Close()
	})

	return err
}
