package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/mrarosh/Pear-code/internal/metrics"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Options tune a Manager. Zero values take the defaults below.
type Options struct {
	Email    string
	Password string

	// Cooldown is the minimum spacing between two authentication attempts.
	// Negative disables it.
	Cooldown time.Duration
	// RateLimitWait is how long to back off after a rate-limit error.
	RateLimitWait time.Duration
	// TTL bounds how long a cached session is reused.
	TTL time.Duration
	// MaxAttempts bounds login attempts that hit the rate limit.
	MaxAttempts int

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

const (
	defaultCooldown      = 30 * time.Second
	defaultRateLimitWait = 2 * time.Minute
	defaultTTL           = 24 * time.Hour
	defaultMaxAttempts   = 3
)

// Manager hands out the shared cloud session.
type Manager struct {
	provider Provider
	cache    Cache
	opts     Options
	limiter  *rate.Limiter
	group    singleflight.Group

	mu        sync.Mutex
	current   Session
	currentAt time.Time
}

// NewManager returns a Manager using provider and cache.
func NewManager(provider Provider, cache Cache, opts Options) *Manager {
	if opts.Cooldown == 0 {
		opts.Cooldown = defaultCooldown
	}
	if opts.RateLimitWait <= 0 {
		opts.RateLimitWait = defaultRateLimitWait
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if cache == nil {
		cache = &MemoryCache{}
	}

	limit := rate.Inf
	if opts.Cooldown > 0 {
		limit = rate.Every(opts.Cooldown)
	}
	return &Manager{
		provider: provider,
		cache:    cache,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetSession returns the current session token, authenticating if needed.
// Concurrent callers share one authentication.
func (m *Manager) GetSession(ctx context.Context) (string, error) {
	s, err := m.session(ctx)
	if err != nil {
		return "", err
	}
	return s.Token(), nil
}

// Upload stores r under name and returns its public link.
func (m *Manager) Upload(ctx context.Context, r io.Reader, name string) (string, error) {
	s, err := m.session(ctx)
	if err != nil {
		return "", err
	}
	url, err := s.Upload(ctx, r, name)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || classify(err) == classAuth {
			m.drop(s)
		}
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	logger.Infof("[cloud] uploaded %s", name)
	return url, nil
}

// Verify performs a fresh authentication, bypassing any cached session.
func (m *Manager) Verify(ctx context.Context) error {
	s, err := m.authenticate(ctx)
	if err != nil {
		return err
	}
	m.adopt(s, m.opts.Now())
	return nil
}

// ClearCache forgets the in-memory and persisted session.
func (m *Manager) ClearCache(ctx context.Context) error {
	m.mu.Lock()
	current := m.current
	m.current = nil
	m.mu.Unlock()
	if current != nil {
		_ = current.Close()
	}
	if err := m.cache.Clear(ctx); err != nil {
		return err
	}
	logger.Infof("[cloud] session cache cleared")
	return nil
}

// Close releases the current session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}

func (m *Manager) session(ctx context.Context) (Session, error) {
	ch := m.group.DoChan("session", func() (any, error) {
		// The flight is shared; one caller giving up must not cancel it.
		return m.resolveSession(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) resolveSession(ctx context.Context) (Session, error) {
	now := m.opts.Now()

	m.mu.Lock()
	if m.current != nil && now.Sub(m.currentAt) < m.opts.TTL {
		s := m.current
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	if s, ok := m.resumeCached(ctx, now); ok {
		return s, nil
	}

	s, err := m.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	m.adopt(s, m.opts.Now())
	return s, nil
}

func (m *Manager) resumeCached(ctx context.Context, now time.Time) (Session, bool) {
	cached, err := m.cache.Load(ctx)
	if err != nil {
		logger.Warnf("[cloud] failed to load cached session: %v", err)
		m.clearCache(ctx)
		return nil, false
	}
	if cached == nil {
		return nil, false
	}
	if now.Sub(cached.CreatedAt) >= m.opts.TTL {
		logger.Debugf("[cloud] cached session expired")
		m.clearCache(ctx)
		return nil, false
	}

	s, err := m.provider.Resume(ctx, cached.Token)
	if err != nil {
		logger.Infof("[cloud] cached session failed, trying fresh auth: %v", err)
		m.clearCache(ctx)
		return nil, false
	}
	logger.Debugf("[cloud] using cached session")

	m.mu.Lock()
	m.current = s
	m.currentAt = cached.CreatedAt
	m.mu.Unlock()
	return s, true
}

// authenticate logs in, honouring the cooldown and retrying rate-limit errors.
func (m *Manager) authenticate(ctx context.Context) (Session, error) {
	if m.opts.Email == "" || m.opts.Password == "" {
		return nil, ErrNoCredentials
	}

	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		logger.Infof("[cloud] authenticating (attempt %d/%d)", attempt, m.opts.MaxAttempts)
		s, err := m.provider.Login(ctx, m.opts.Email, m.opts.Password)
		if err == nil {
			metrics.RecordCloudAuth("ok")
			return s, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		class := classify(err)
		metrics.RecordCloudAuth(class.String())
		switch class {
		case classBlocked:
			logger.Errorf("[cloud] account blocked: %v", err)
			m.clearCache(ctx)
			return nil, fmt.Errorf("%w: %v", ErrAccountBlocked, err)
		case classAuth:
			logger.Errorf("[cloud] authentication error: %v", err)
			m.clearCache(ctx)
			return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		case classRateLimited:
			lastErr = err
			m.clearCache(ctx)
			if attempt == m.opts.MaxAttempts {
				continue
			}
			logger.Warnf("[cloud] rate limited, waiting %s before retry", m.opts.RateLimitWait)
			if err := m.opts.Sleep(ctx, m.opts.RateLimitWait); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("cloud login: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
}

func (m *Manager) adopt(s Session, at time.Time) {
	m.mu.Lock()
	old := m.current
	m.current = s
	m.currentAt = at
	m.mu.Unlock()
	if old != nil && old != s {
		_ = old.Close()
	}

	if err := m.cache.Save(context.Background(), CachedSession{Token: s.Token(), CreatedAt: at}); err != nil {
		logger.Warnf("[cloud] failed to save session cache: %v", err)
	}
}

func (m *Manager) drop(s Session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
	_ = s.Close()
}

func (m *Manager) clearCache(ctx context.Context) {
	if err := m.cache.Clear(ctx); err != nil {
		logger.Warnf("[cloud] failed to clear session cache: %v", err)
	}
}
