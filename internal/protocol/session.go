package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/mrarosh/Pear-code/internal/sessionstore"
)

// CredentialStore is the part of the session store the adapter writes to.
type CredentialStore interface {
	Get(id string) (*sessionstore.Session, bool)
	UpdateCredentials(id string, creds []byte, now time.Time) error
	UpdateKeys(id string, keys []byte, now time.Time) error
}

// Session binds one gateway Client to one stored pairing session.
//
// Credential updates from the gateway are written to the store. Connection
// updates are forwarded to the callback given to NewSession.
type Session struct {
	id     string
	store  CredentialStore
	now    func() time.Time
	client Client

	onUpdate  func(ConnectionUpdate)
	onMessage func(Message)

	terminateOnce sync.Once
	terminateErr  error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMessageHandler forwards inbound chat messages to fn.
func WithMessageHandler(fn func(Message)) SessionOption {
	return func(s *Session) {
		s.onMessage = fn
	}
}

// NewSession builds the gateway client for session id through factory.
// onUpdate receives every connection state change and must not block.
func NewSession(id string, store CredentialStore, factory Factory, now func() time.Time, onUpdate func(ConnectionUpdate), opts ...SessionOption) (*Session, error) {
	if factory == nil {
		return nil, errors.New("protocol factory is required")
	}
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	if now == nil {
		now = time.Now
	}
	s := &Session{id: id, store: store, now: now, onUpdate: onUpdate}
	for _, opt := range opts {
		opt(s)
	}

	h := Handlers{
		OnConnectionUpdate:  s.handleConnectionUpdate,
		OnCredentialsUpdate: s.handleCredentialsUpdate,
	}
	if s.onMessage != nil {
		h.OnMessage = s.onMessage
	}
	client, err := factory(id, h)
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}
	s.client = client
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Connect starts the gateway connection with the stored auth state.
func (s *Session) Connect(ctx context.Context) error {
	auth := AuthState{SessionID: s.id}
	if stored, ok := s.store.Get(s.id); ok {
		auth.Creds = stored.Credentials
		auth.Keys = stored.Keys
	}
	return s.client.Connect(ctx, auth)
}

// RequestPairingCode asks the gateway for a pairing code.
func (s *Session) RequestPairingCode(ctx context.Context, number string) (string, error) {
	code, err := s.client.RequestPairingCode(ctx, number)
	if err != nil {
		return "", err
	}
	return code, nil
}

// SendText relays a text message through the gateway.
func (s *Session) SendText(ctx context.Context, to, text string) error {
	return s.client.SendText(ctx, to, text)
}

// Terminate closes the gateway connection. It is idempotent: later calls and
// an already-closed client both report success.
func (s *Session) Terminate() error {
	s.terminateOnce.Do(func() {
		err := s.client.Terminate()
		if errors.Is(err, ErrClosed) {
			err = nil
		}
		s.terminateErr = err
	})
	return s.terminateErr
}

func (s *Session) handleConnectionUpdate(update ConnectionUpdate) {
	logger.Tracef("[gateway] session %s state=%s reason=%q", s.id, update.State, update.Reason)
	if s.onUpdate != nil {
		s.onUpdate(update)
	}
}

func (s *Session) handleCredentialsUpdate(creds Credentials) {
	now := s.now()
	if creds.Creds != nil {
		if err := s.store.UpdateCredentials(s.id, creds.Creds, now); err != nil {
			logger.Debugf("[gateway] session %s dropping creds update: %v", s.id, err)
			return
		}
	}
	if creds.Keys != nil {
		if err := s.store.UpdateKeys(s.id, creds.Keys, now); err != nil {
			logger.Debugf("[gateway] session %s dropping keys update: %v", s.id, err)
		}
	}
}
