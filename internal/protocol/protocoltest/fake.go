// Package protocoltest provides an in-memory gateway for tests.
package protocoltest

import (
	"context"
	"sync"

	"github.com/mrarosh/Pear-code/internal/protocol"
)

// SentText records a SendText call.
type SentText struct {
	To   string
	Text string
}

// FakeClient is a scriptable protocol.Client.
type FakeClient struct {
	SessionID string

	// ConnectFn, RequestFn and SendFn override the default behaviour when set.
	ConnectFn func(ctx context.Context, auth protocol.AuthState) error
	RequestFn func(ctx context.Context, number string) (string, error)
	SendFn    func(ctx context.Context, to, text string) error

	mu         sync.Mutex
	handlers   protocol.Handlers
	auth       []protocol.AuthState
	requested  []string
	sent       []SentText
	terminates int
	connected  chan struct{}
	requestedC chan string
}

var _ protocol.Client = (*FakeClient)(nil)

// NewFakeClient returns a FakeClient bound to handlers.
func NewFakeClient(sessionID string, h protocol.Handlers) *FakeClient {
	return &FakeClient{
		SessionID:  sessionID,
		handlers:   h,
		connected:  make(chan struct{}, 1),
		requestedC: make(chan string, 4),
	}
}

// Connect implements protocol.Client.
func (f *FakeClient) Connect(ctx context.Context, auth protocol.AuthState) error {
	f.mu.Lock()
	f.auth = append(f.auth, auth)
	fn := f.ConnectFn
	f.mu.Unlock()

	select {
	case f.connected <- struct{}{}:
	default:
	}
	if fn != nil {
		return fn(ctx, auth)
	}
	return nil
}

// RequestPairingCode implements protocol.Client. Without RequestFn it blocks
// until ctx is done.
func (f *FakeClient) RequestPairingCode(ctx context.Context, number string) (string, error) {
	f.mu.Lock()
	f.requested = append(f.requested, number)
	fn := f.RequestFn
	f.mu.Unlock()

	select {
	case f.requestedC <- number:
	default:
	}
	if fn != nil {
		return fn(ctx, number)
	}
	<-ctx.Done()
	return "", ctx.Err()
}

// SendText implements protocol.Client.
func (f *FakeClient) SendText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, SentText{To: to, Text: text})
	fn := f.SendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, to, text)
	}
	return nil
}

// Terminate implements protocol.Client.
func (f *FakeClient) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminates++
	if f.terminates > 1 {
		return protocol.ErrClosed
	}
	return nil
}

// Update delivers a connection update as if it came from the gateway.
func (f *FakeClient) Update(state protocol.ConnectionState, reason string) {
	if h := f.handlers.OnConnectionUpdate; h != nil {
		h(protocol.ConnectionUpdate{State: state, Reason: reason})
	}
}

// UpdateCredentials delivers a credentials update.
func (f *FakeClient) UpdateCredentials(creds protocol.Credentials) {
	if h := f.handlers.OnCredentialsUpdate; h != nil {
		h(creds)
	}
}

// Deliver delivers an inbound message.
func (f *FakeClient) Deliver(msg protocol.Message) {
	if h := f.handlers.OnMessage; h != nil {
		h(msg)
	}
}

// Connected is signalled on the first Connect call.
func (f *FakeClient) Connected() <-chan struct{} { return f.connected }

// Requested receives every number passed to RequestPairingCode.
func (f *FakeClient) Requested() <-chan string { return f.requestedC }

// Terminations returns how many times Terminate was called.
func (f *FakeClient) Terminations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminates
}

// Auth returns the auth states passed to Connect.
func (f *FakeClient) Auth() []protocol.AuthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.AuthState(nil), f.auth...)
}

// Sent returns the recorded SendText calls.
func (f *FakeClient) Sent() []SentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentText(nil), f.sent...)
}

// Gateway hands out FakeClients and remembers them by session id.
type Gateway struct {
	// Configure, when set, is called on every new client before it is
	// returned to the caller.
	Configure func(c *FakeClient)

	mu      sync.Mutex
	clients map[string]*FakeClient
	created chan *FakeClient
}

// NewGateway returns an empty Gateway.
func NewGateway() *Gateway {
	return &Gateway{
		clients: make(map[string]*FakeClient),
		created: make(chan *FakeClient, 16),
	}
}

// Factory implements protocol.Factory.
func (g *Gateway) Factory(sessionID string, h protocol.Handlers) (protocol.Client, error) {
	c := NewFakeClient(sessionID, h)
	if g.Configure != nil {
		g.Configure(c)
	}
	g.mu.Lock()
	g.clients[sessionID] = c
	g.mu.Unlock()
	select {
	case g.created <- c:
	default:
	}
	return c, nil
}

// Created receives each client as it is built.
func (g *Gateway) Created() <-chan *FakeClient { return g.created }

// Client returns the client built for sessionID.
func (g *Gateway) Client(sessionID string) (*FakeClient, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.clients[sessionID]
	return c, ok
}
