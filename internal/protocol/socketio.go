package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrarosh/Pear-code/internal/logger"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// SocketIOClient reaches the gateway over Socket.IO.
type SocketIOClient struct {
	serverURL string
	path      string
	sessionID string
	signer    *TokenSigner
	handlers  Handlers

	mu         sync.RWMutex
	socket     *socket.Socket
	terminated bool
}

var _ Client = (*SocketIOClient)(nil)

// NewSocketIOClient creates a Socket.IO gateway client for one session.
func NewSocketIOClient(serverURL, sessionID string, signer *TokenSigner, h Handlers) *SocketIOClient {
	return &SocketIOClient{
		serverURL: serverURL,
		path:      "/v1/pair",
		sessionID: sessionID,
		signer:    signer,
		handlers:  h,
	}
}

// Connect implements Client.
func (c *SocketIOClient) Connect(ctx context.Context, auth AuthState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	terminated := c.terminated
	c.mu.RUnlock()
	if terminated {
		return ErrClosed
	}

	token, err := c.signer.Sign(c.sessionID)
	if err != nil {
		return fmt.Errorf("sign gateway token: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(c.path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(authPayload(token, auth))

	logger.Debugf("[gateway] session %s connecting to %s", c.sessionID, c.serverURL)
	c.notify(ConnectionUpdate{State: StateConnecting})

	sock, err := socket.Connect(c.serverURL, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		sock.Disconnect()
		return ErrClosed
	}
	c.socket = sock
	c.mu.Unlock()

	sock.On(types.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		logger.Debugf("[gateway] session %s disconnected: %s", c.sessionID, reason)
		c.notify(ConnectionUpdate{State: StateClosed, Reason: reason})
	})

	sock.On(types.EventName("connect_error"), func(args ...any) {
		reason := "connect error"
		if len(args) > 0 {
			reason = fmt.Sprint(args[0])
		}
		logger.Warnf("[gateway] session %s connection error: %s", c.sessionID, reason)
		c.notify(ConnectionUpdate{State: StateClosed, Reason: reason})
	})

	sock.On(types.EventName(eventConnectionUpdate), func(args ...any) {
		update, ok := parseConnectionUpdate(firstMap(args))
		if !ok {
			return
		}
		c.notify(update)
	})

	sock.On(types.EventName(eventCredsUpdate), func(args ...any) {
		creds, err := parseCredentials(firstMap(args))
		if err != nil {
			logger.Warnf("[gateway] session %s bad creds update: %v", c.sessionID, err)
			return
		}
		if h := c.handlers.OnCredentialsUpdate; h != nil {
			h(creds)
		}
	})

	sock.On(types.EventName(eventMessagesUpsert), func(args ...any) {
		msg, ok := parseMessage(firstMap(args))
		if !ok {
			return
		}
		if h := c.handlers.OnMessage; h != nil {
			h(msg)
		}
	})

	return nil
}

// RequestPairingCode implements Client.
func (c *SocketIOClient) RequestPairingCode(ctx context.Context, number string) (string, error) {
	resp, err := c.emitWithAck(ctx, eventRequestPairingCode, map[string]any{"number": number})
	if err != nil {
		return "", err
	}
	return parseCodeAck(resp)
}

// SendText implements Client.
func (c *SocketIOClient) SendText(ctx context.Context, to, text string) error {
	resp, err := c.emitWithAck(ctx, eventSendMessage, map[string]any{"to": to, "text": text})
	if err != nil {
		return err
	}
	return parseSendAck(resp)
}

func (c *SocketIOClient) emitWithAck(ctx context.Context, event string, data map[string]any) (map[string]any, error) {
	c.mu.RLock()
	sock := c.socket
	terminated := c.terminated
	c.mu.RUnlock()

	if terminated {
		return nil, ErrClosed
	}
	if sock == nil {
		return nil, ErrNotConnected
	}

	resultCh := make(chan map[string]any, 1)
	errCh := make(chan error, 1)

	sock.Emit(event, data, func(args []any, err error) {
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- firstMap(args)
	})

	select {
	case res := <-resultCh:
		return res, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate implements Client.
func (c *SocketIOClient) Terminate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return ErrClosed
	}
	c.terminated = true
	if c.socket != nil {
		c.socket.Disconnect()
		c.socket = nil
	}
	return nil
}

func (c *SocketIOClient) notify(update ConnectionUpdate) {
	c.mu.RLock()
	terminated := c.terminated
	c.mu.RUnlock()
	if terminated {
		return
	}
	if h := c.handlers.OnConnectionUpdate; h != nil {
		h(update)
	}
}

func firstMap(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m, _ := args[0].(map[string]any)
	return m
}
