package cloud

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

type fakeSession struct {
	token    string
	uploadFn func(ctx context.Context, r io.Reader, name string) (string, error)
	closed   atomic.Bool
}

func (s *fakeSession) Token() string { return s.token }

func (s *fakeSession) Upload(ctx context.Context, r io.Reader, name string) (string, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, r, name)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return "https://cloud.example/" + name + "#" + string(b), nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeProvider struct {
	mu      sync.Mutex
	logins  int
	resumes int

	// loginErrs are returned by successive Login calls; once exhausted Login
	// succeeds.
	loginErrs []error
	loginHook func()
	resumeErr error
	live      map[string]bool
}

func newFakeProvider(loginErrs ...error) *fakeProvider {
	return &fakeProvider{loginErrs: loginErrs, live: map[string]bool{}}
}

func (p *fakeProvider) Login(ctx context.Context, email, password string) (Session, error) {
	p.mu.Lock()
	p.logins++
	n := p.logins
	var err error
	if len(p.loginErrs) > 0 {
		err = p.loginErrs[0]
		p.loginErrs = p.loginErrs[1:]
	}
	hook := p.loginHook
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	token := "tok-" + string(rune('0'+n))
	p.mu.Lock()
	p.live[token] = true
	p.mu.Unlock()
	return &fakeSession{token: token}, nil
}

func (p *fakeProvider) Resume(ctx context.Context, token string) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
	if p.resumeErr != nil {
		return nil, p.resumeErr
	}
	if !p.live[token] {
		return nil, ErrSessionExpired
	}
	return &fakeSession{token: token}, nil
}

func (p *fakeProvider) counts() (logins, resumes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins, p.resumes
}
