package cloud

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mrarosh/Pear-code/internal/crypto"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteCache keeps the session token in a SQLite file, sealed with a key
// derived from the master secret.
type SQLiteCache struct {
	db  *sql.DB
	key *[32]byte
}

var _ Cache = (*SQLiteCache)(nil)

// OpenSQLiteCache opens (and migrates) the cache database at path.
func OpenSQLiteCache(path string, masterSecret []byte) (*SQLiteCache, error) {
	key, err := crypto.DeriveKey(masterSecret, "Cloud Session Cache")
	if err != nil {
		return nil, fmt.Errorf("derive cache key: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLiteCache{db: db, key: key}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	const version = "001_cloud_session"
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if count > 0 {
		return nil
	}

	migrationSQL, err := migrations.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}

// Load implements Cache.
func (c *SQLiteCache) Load(ctx context.Context) (*CachedSession, error) {
	var (
		sealed    []byte
		createdAt int64
	)
	err := c.db.QueryRowContext(ctx, "SELECT token, created_at FROM cloud_session WHERE id = 1").Scan(&sealed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cached session: %w", err)
	}
	token, err := crypto.Open(sealed, c.key)
	if err != nil {
		return nil, fmt.Errorf("open cached session: %w", err)
	}
	return &CachedSession{Token: string(token), CreatedAt: time.UnixMilli(createdAt)}, nil
}

// Save implements Cache.
func (c *SQLiteCache) Save(ctx context.Context, s CachedSession) error {
	sealed, err := crypto.Seal([]byte(s.Token), c.key)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cloud_session (id, token, created_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET token = excluded.token, created_at = excluded.created_at
	`, sealed, s.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save cached session: %w", err)
	}
	return nil
}

// Clear implements Cache.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM cloud_session"); err != nil {
		return fmt.Errorf("clear cached session: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	session *CachedSession
}

var _ Cache = (*MemoryCache)(nil)

// Load implements Cache.
func (c *MemoryCache) Load(context.Context) (*CachedSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, nil
	}
	s := *c.session
	return &s, nil
}

// Save implements Cache.
func (c *MemoryCache) Save(_ context.Context, s CachedSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &s
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	return nil
}
