package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FailurePolicy decides how the pairing flow reports a handshake that did not
// produce a code.
type FailurePolicy string

const (
	// PolicyDegrade substitutes a demo code for timeouts and closed transports.
	PolicyDegrade FailurePolicy = "degrade"
	// PolicyStrict reports timeouts and closed transports as service errors.
	PolicyStrict FailurePolicy = "strict"
)

// Transport selects how the protocol gateway is reached.
type Transport string

const (
	TransportSocketIO  Transport = "socketio"
	TransportWebSocket Transport = "websocket"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr           string
	Debug          bool
	LogLevel       string
	AllowedOrigins []string

	Pairing   PairingConfig
	Gateway   GatewayConfig
	Cloud     CloudConfig
	KeepAlive KeepAliveConfig
}

// PairingConfig bounds a single pairing attempt.
type PairingConfig struct {
	// TotalTimeout is the overall deadline for one request.
	TotalTimeout time.Duration
	// FallbackTimeout resolves with a demo code when it fires. Zero disables it.
	FallbackTimeout time.Duration
	// CodeTimeout bounds the pairing-code request itself.
	CodeTimeout time.Duration
	// StabilizeDelay is waited after the transport opens.
	StabilizeDelay time.Duration
	// SafetyMargin is kept between the code request and the overall deadline.
	SafetyMargin  time.Duration
	FailurePolicy FailurePolicy
}

// GatewayConfig locates the protocol gateway.
type GatewayConfig struct {
	URL       string
	Transport Transport
	// Secret signs the handshake token presented to the gateway.
	Secret string
}

// CloudConfig holds the cloud-storage account and its session policy.
type CloudConfig struct {
	Email    string
	Password string
	// CachePath is the SQLite file holding the cached session.
	CachePath string
	// MasterSecret seals the cached session token at rest.
	MasterSecret  string
	AuthCooldown  time.Duration
	RateLimitWait time.Duration
	CacheTTL      time.Duration
	MaxAttempts   int
}

// KeepAliveConfig drives the optional self-ping loop.
type KeepAliveConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// Overrides optionally overrides values from the file and environment.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr       *string
	Debug      *bool
	ConfigFile *string
	GatewayURL *string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:           ":8000",
		LogLevel:       "info",
		AllowedOrigins: []string{"*"},
		Pairing: PairingConfig{
			TotalTimeout:    25 * time.Second,
			FallbackTimeout: 15 * time.Second,
			CodeTimeout:     10 * time.Second,
			StabilizeDelay:  1500 * time.Millisecond,
			SafetyMargin:    500 * time.Millisecond,
			FailurePolicy:   PolicyDegrade,
		},
		Gateway: GatewayConfig{
			Transport: TransportSocketIO,
		},
		Cloud: CloudConfig{
			CachePath:     "./cloud_session.db",
			AuthCooldown:  30 * time.Second,
			RateLimitWait: 2 * time.Minute,
			CacheTTL:      24 * time.Hour,
			MaxAttempts:   3,
		},
		KeepAlive: KeepAliveConfig{
			Interval: 5 * time.Minute,
			Timeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file
// (PAIR_CONFIG), environment variables and explicit overrides, in that order.
func Load(overrides Overrides) (*Config, error) {
	cfg := Default()

	path := os.Getenv("PAIR_CONFIG")
	if overrides.ConfigFile != nil {
		path = *overrides.ConfigFile
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if overrides.Addr != nil {
		cfg.Addr = *overrides.Addr
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
	if overrides.GatewayURL != nil {
		cfg.Gateway.URL = *overrides.GatewayURL
	}
	if cfg.Debug && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects timeout combinations the pairing flow cannot honour.
func (c *Config) Validate() error {
	p := c.Pairing
	if p.TotalTimeout <= 0 {
		return fmt.Errorf("pairing total timeout must be positive")
	}
	if p.FallbackTimeout < 0 || (p.FallbackTimeout > 0 && p.FallbackTimeout >= p.TotalTimeout) {
		return fmt.Errorf("pairing fallback timeout %s must be shorter than total timeout %s", p.FallbackTimeout, p.TotalTimeout)
	}
	if p.CodeTimeout <= 0 || p.CodeTimeout >= p.TotalTimeout {
		return fmt.Errorf("pairing code timeout %s must be positive and shorter than total timeout %s", p.CodeTimeout, p.TotalTimeout)
	}
	if p.StabilizeDelay < 0 {
		return fmt.Errorf("pairing stabilize delay must not be negative")
	}
	if p.SafetyMargin <= 0 || p.SafetyMargin >= p.TotalTimeout {
		return fmt.Errorf("pairing safety margin %s must be positive and shorter than total timeout %s", p.SafetyMargin, p.TotalTimeout)
	}
	switch p.FailurePolicy {
	case PolicyDegrade, PolicyStrict:
	default:
		return fmt.Errorf("unknown pairing failure policy %q", p.FailurePolicy)
	}
	switch c.Gateway.Transport {
	case TransportSocketIO, TransportWebSocket:
	default:
		return fmt.Errorf("unknown gateway transport %q", c.Gateway.Transport)
	}
	if c.Cloud.MaxAttempts < 1 {
		return fmt.Errorf("cloud max attempts must be at least 1")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			cfg.Addr = fmt.Sprintf(":%d", p)
		}
	}
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		cfg.Debug = true
	}
	setString(&cfg.LogLevel, "LOG_LEVEL")
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PAIR_TOTAL_TIMEOUT", &cfg.Pairing.TotalTimeout},
		{"PAIR_FALLBACK_TIMEOUT", &cfg.Pairing.FallbackTimeout},
		{"PAIR_CODE_TIMEOUT", &cfg.Pairing.CodeTimeout},
		{"PAIR_STABILIZE_DELAY", &cfg.Pairing.StabilizeDelay},
		{"PAIR_SAFETY_MARGIN", &cfg.Pairing.SafetyMargin},
		{"CLOUD_AUTH_COOLDOWN", &cfg.Cloud.AuthCooldown},
		{"CLOUD_RATE_LIMIT_WAIT", &cfg.Cloud.RateLimitWait},
		{"CLOUD_CACHE_TTL", &cfg.Cloud.CacheTTL},
		{"KEEPALIVE_INTERVAL", &cfg.KeepAlive.Interval},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("PAIR_FAILURE_POLICY"); v != "" {
		cfg.Pairing.FailurePolicy = FailurePolicy(strings.ToLower(strings.TrimSpace(v)))
	}
	setString(&cfg.Gateway.URL, "GATEWAY_URL")
	if v := os.Getenv("GATEWAY_TRANSPORT"); v != "" {
		cfg.Gateway.Transport = Transport(strings.ToLower(strings.TrimSpace(v)))
	}
	setString(&cfg.Gateway.Secret, "GATEWAY_SECRET")

	setString(&cfg.Cloud.Email, "CLOUD_EMAIL")
	setString(&cfg.Cloud.Password, "CLOUD_PASSWORD")
	setString(&cfg.Cloud.CachePath, "CLOUD_CACHE_PATH")
	setString(&cfg.Cloud.MasterSecret, "CLOUD_MASTER_SECRET")

	setString(&cfg.KeepAlive.URL, "KEEPALIVE_URL")
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	d, err := parseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

// parseDuration accepts Go duration strings and bare integers as milliseconds.
func parseDuration(raw string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
