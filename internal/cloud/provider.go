// Package cloud manages an authenticated cloud-storage session.
//
// Authentication is rate limited by a cooldown, sessions are cached (on disk
// through Cache) for a TTL, and provider failures are classified into blocked,
// rate-limited and credential errors, each with its own recovery.
package cloud

import (
	"context"
	"io"
	"time"
)

// Session is a live, authenticated provider session.
type Session interface {
	// Token identifies the session and can be handed to Provider.Resume.
	Token() string
	// Upload stores r under name and returns a public link.
	Upload(ctx context.Context, r io.Reader, name string) (string, error)
	Close() error
}

// Provider authenticates against the storage service.
type Provider interface {
	Login(ctx context.Context, email, password string) (Session, error)
	// Resume revives a session from its token. Providers that cannot return
	// ErrSessionExpired.
	Resume(ctx context.Context, token string) (Session, error)
}

// CachedSession is a persisted session token.
type CachedSession struct {
	Token     string
	CreatedAt time.Time
}

// Cache persists the last good session token.
type Cache interface {
	// Load returns nil when nothing is cached.
	Load(ctx context.Context) (*CachedSession, error)
	Save(ctx context.Context, s CachedSession) error
	Clear(ctx context.Context) error
}
