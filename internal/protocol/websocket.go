package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mrarosh/Pear-code/internal/logger"
)

// frame is the JSON envelope exchanged with the gateway over plain WebSocket.
type frame struct {
	Type string         `json:"type"`
	ID   int64          `json:"id,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

const frameAck = "ack"

// WSClient reaches the gateway over a plain WebSocket with JSON frames.
type WSClient struct {
	serverURL string
	sessionID string
	signer    *TokenSigner
	handlers  Handlers
	dialer    *websocket.Dialer

	writeMu sync.Mutex

	mu         sync.Mutex
	conn       *websocket.Conn
	nextID     int64
	pending    map[int64]chan map[string]any
	terminated bool
	done       chan struct{}
}

var _ Client = (*WSClient)(nil)

// NewWSClient creates a WebSocket gateway client for one session.
func NewWSClient(serverURL, sessionID string, signer *TokenSigner, h Handlers) *WSClient {
	return &WSClient{
		serverURL: serverURL,
		sessionID: sessionID,
		signer:    signer,
		handlers:  h,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending:   make(map[int64]chan map[string]any),
		done:      make(chan struct{}),
	}
}

// Connect implements Client.
func (c *WSClient) Connect(ctx context.Context, auth AuthState) error {
	c.mu.Lock()
	terminated := c.terminated
	c.mu.Unlock()
	if terminated {
		return ErrClosed
	}

	token, err := c.signer.Sign(c.sessionID)
	if err != nil {
		return fmt.Errorf("sign gateway token: %w", err)
	}
	endpoint, err := wsEndpoint(c.serverURL, c.sessionID)
	if err != nil {
		return err
	}

	c.notify(ConnectionUpdate{State: StateConnecting})

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	hello := frame{Type: "auth", Data: authPayload(token, auth)}
	if err := c.write(hello); err != nil {
		_ = c.Terminate()
		return fmt.Errorf("send auth: %w", err)
	}

	go c.readLoop(conn)
	return nil
}

func wsEndpoint(serverURL, sessionID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/v1/pair/ws"
	q := u.Query()
	q.Set("sessionId", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	reason := ""
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			reason = err.Error()
			break
		}
		switch f.Type {
		case frameAck:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f.Data
			}
		case eventConnectionUpdate:
			if update, ok := parseConnectionUpdate(f.Data); ok {
				c.notify(update)
			}
		case eventCredsUpdate:
			creds, err := parseCredentials(f.Data)
			if err != nil {
				logger.Warnf("[gateway] session %s bad creds update: %v", c.sessionID, err)
				continue
			}
			if h := c.handlers.OnCredentialsUpdate; h != nil {
				h(creds)
			}
		case eventMessagesUpsert:
			if msg, ok := parseMessage(f.Data); ok && c.handlers.OnMessage != nil {
				c.handlers.OnMessage(msg)
			}
		default:
			logger.Tracef("[gateway] session %s ignoring frame %q", c.sessionID, f.Type)
		}
	}

	logger.Debugf("[gateway] session %s websocket closed: %s", c.sessionID, reason)
	c.notify(ConnectionUpdate{State: StateClosed, Reason: reason})
	c.shutdown()
}

// RequestPairingCode implements Client.
func (c *WSClient) RequestPairingCode(ctx context.Context, number string) (string, error) {
	resp, err := c.request(ctx, eventRequestPairingCode, map[string]any{"number": number})
	if err != nil {
		return "", err
	}
	return parseCodeAck(resp)
}

// SendText implements Client.
func (c *WSClient) SendText(ctx context.Context, to, text string) error {
	resp, err := c.request(ctx, eventSendMessage, map[string]any{"to": to, "text": text})
	if err != nil {
		return err
	}
	return parseSendAck(resp)
}

func (c *WSClient) request(ctx context.Context, event string, data map[string]any) (map[string]any, error) {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan map[string]any, 1)
	c.pending[id] = ch
	done := c.done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(frame{Type: event, ID: id, Data: data}); err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *WSClient) write(f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Terminate implements Client.
func (c *WSClient) Terminate() error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return ErrClosed
	}
	c.terminated = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "terminated"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.shutdown()
	return nil
}

func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *WSClient) notify(update ConnectionUpdate) {
	c.mu.Lock()
	terminated := c.terminated
	c.mu.Unlock()
	if terminated {
		return
	}
	if h := c.handlers.OnConnectionUpdate; h != nil {
		h(update)
	}
}
