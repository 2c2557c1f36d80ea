package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	mega "github.com/t3rm1n4l/go-mega"
)

// MegaProvider talks to MEGA through go-mega.
//
// go-mega does not export its session id, so tokens are opaque handles to
// clients logged in by this process. Resume only succeeds for those; after a
// restart the Manager falls back to a fresh login.
type MegaProvider struct {
	mu       sync.Mutex
	sessions map[string]*mega.Mega
}

var _ Provider = (*MegaProvider)(nil)

// NewMegaProvider returns a provider with no live sessions.
func NewMegaProvider() *MegaProvider {
	return &MegaProvider{sessions: make(map[string]*mega.Mega)}
}

// Login implements Provider.
func (p *MegaProvider) Login(ctx context.Context, email, password string) (Session, error) {
	client := mega.New()
	if err := runCtx(ctx, func() error { return client.Login(email, password) }); err != nil {
		return nil, err
	}

	token := uuid.NewString()
	p.mu.Lock()
	p.sessions[token] = client
	p.mu.Unlock()
	return &megaSession{provider: p, token: token, client: client}, nil
}

// Resume implements Provider.
func (p *MegaProvider) Resume(ctx context.Context, token string) (Session, error) {
	p.mu.Lock()
	client, ok := p.sessions[token]
	p.mu.Unlock()
	if !ok {
		return nil, ErrSessionExpired
	}

	err := runCtx(ctx, func() error {
		_, err := client.GetQuota()
		return err
	})
	if err != nil {
		p.forget(token)
		return nil, err
	}
	return &megaSession{provider: p, token: token, client: client}, nil
}

func (p *MegaProvider) forget(token string) {
	p.mu.Lock()
	delete(p.sessions, token)
	p.mu.Unlock()
}

type megaSession struct {
	provider *MegaProvider
	token    string
	client   *mega.Mega
}

func (s *megaSession) Token() string { return s.token }

// Upload spools r to a temporary file because go-mega uploads from a path.
func (s *megaSession) Upload(ctx context.Context, r io.Reader, name string) (string, error) {
	tmp, err := os.CreateTemp("", "pear-upload-*")
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}

	var link string
	err = runCtx(ctx, func() error {
		node, err := s.client.UploadFile(tmp.Name(), s.client.FS.GetRoot(), name, nil)
		if err != nil {
			return err
		}
		link, err = s.client.Link(node, true)
		return err
	})
	if err != nil {
		return "", err
	}
	return link, nil
}

func (s *megaSession) Close() error {
	s.provider.forget(s.token)
	return nil
}

// runCtx runs a blocking call and gives up when ctx is done. The call itself
// keeps running in the background.
func runCtx(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
