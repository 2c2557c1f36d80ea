// Package protocol adapts the messaging-protocol gateway to pairing sessions.
//
// The gateway owns the real protocol handshake. This package only moves
// connection updates, credential updates and pairing-code requests between
// the gateway and one pairing session.
package protocol

import (
	"context"
	"errors"
)

// ConnectionState is the protocol connection state reported by the gateway.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosed     ConnectionState = "closed"
)

// ConnectionUpdate is delivered whenever the connection state changes.
type ConnectionUpdate struct {
	State ConnectionState
	// Reason is set for closed updates when the gateway or transport gave one.
	Reason string
}

// Credentials is the opaque auth material the gateway asks us to persist.
type Credentials struct {
	Creds []byte
	Keys  []byte
}

// AuthState is presented on connect so the gateway can resume a handshake.
type AuthState struct {
	SessionID string
	Creds     []byte
	Keys      []byte
}

// Message is an inbound chat message relayed by the gateway.
type Message struct {
	From string
	Text string
}

// Handlers receive asynchronous notifications from a Client. Any of them may
// be nil. They are called from transport goroutines and must not block.
type Handlers struct {
	OnConnectionUpdate  func(ConnectionUpdate)
	OnCredentialsUpdate func(Credentials)
	OnMessage           func(Message)
}

// Client is one connection to the protocol gateway.
type Client interface {
	// Connect starts the connection. Progress is reported through
	// Handlers.OnConnectionUpdate; Connect returns once the attempt started.
	Connect(ctx context.Context, auth AuthState) error
	// RequestPairingCode asks the gateway for a pairing code for number.
	RequestPairingCode(ctx context.Context, number string) (string, error)
	// SendText relays a text message to a chat.
	SendText(ctx context.Context, to, text string) error
	// Terminate closes the connection. Calling it again returns ErrClosed.
	Terminate() error
}

// Factory builds a Client for a session id.
type Factory func(sessionID string, h Handlers) (Client, error)

var (
	// ErrAlreadyRegistered is returned when the number is already linked.
	ErrAlreadyRegistered = errors.New("number already registered")
	// ErrClosed is returned when the client has been terminated.
	ErrClosed = errors.New("connection closed")
	// ErrNotConnected is returned when a request is made before Connect.
	ErrNotConnected = errors.New("not connected")
)
