package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Addr           string   `toml:"addr"`
	Debug          bool     `toml:"debug"`
	LogLevel       string   `toml:"log_level"`
	AllowedOrigins []string `toml:"allowed_origins"`

	Pairing struct {
		TotalTimeout    string `toml:"total_timeout"`
		FallbackTimeout string `toml:"fallback_timeout"`
		CodeTimeout     string `toml:"code_timeout"`
		StabilizeDelay  string `toml:"stabilize_delay"`
		SafetyMargin    string `toml:"safety_margin"`
		FailurePolicy   string `toml:"failure_policy"`
	} `toml:"pairing"`

	Gateway struct {
		URL       string `toml:"url"`
		Transport string `toml:"transport"`
		Secret    string `toml:"secret"`
	} `toml:"gateway"`

	Cloud struct {
		Email         string `toml:"email"`
		Password      string `toml:"password"`
		CachePath     string `toml:"cache_path"`
		MasterSecret  string `toml:"master_secret"`
		AuthCooldown  string `toml:"auth_cooldown"`
		RateLimitWait string `toml:"rate_limit_wait"`
		CacheTTL      string `toml:"cache_ttl"`
		MaxAttempts   int    `toml:"max_attempts"`
	} `toml:"cloud"`

	KeepAlive struct {
		URL      string `toml:"url"`
		Interval string `toml:"interval"`
	} `toml:"keepalive"`
}

// applyFile overlays keys present in the TOML file at path onto cfg. Keys
// absent from the file leave cfg untouched.
func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("allowed_origins") {
		cfg.AllowedOrigins = raw.AllowedOrigins
	}

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"pairing", "total_timeout"}, raw.Pairing.TotalTimeout, &cfg.Pairing.TotalTimeout},
		{[]string{"pairing", "fallback_timeout"}, raw.Pairing.FallbackTimeout, &cfg.Pairing.FallbackTimeout},
		{[]string{"pairing", "code_timeout"}, raw.Pairing.CodeTimeout, &cfg.Pairing.CodeTimeout},
		{[]string{"pairing", "stabilize_delay"}, raw.Pairing.StabilizeDelay, &cfg.Pairing.StabilizeDelay},
		{[]string{"pairing", "safety_margin"}, raw.Pairing.SafetyMargin, &cfg.Pairing.SafetyMargin},
		{[]string{"cloud", "auth_cooldown"}, raw.Cloud.AuthCooldown, &cfg.Cloud.AuthCooldown},
		{[]string{"cloud", "rate_limit_wait"}, raw.Cloud.RateLimitWait, &cfg.Cloud.RateLimitWait},
		{[]string{"cloud", "cache_ttl"}, raw.Cloud.CacheTTL, &cfg.Cloud.CacheTTL},
		{[]string{"keepalive", "interval"}, raw.KeepAlive.Interval, &cfg.KeepAlive.Interval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := parseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}

	if meta.IsDefined("pairing", "failure_policy") {
		cfg.Pairing.FailurePolicy = FailurePolicy(strings.ToLower(strings.TrimSpace(raw.Pairing.FailurePolicy)))
	}
	if meta.IsDefined("gateway", "url") {
		cfg.Gateway.URL = strings.TrimSpace(raw.Gateway.URL)
	}
	if meta.IsDefined("gateway", "transport") {
		cfg.Gateway.Transport = Transport(strings.ToLower(strings.TrimSpace(raw.Gateway.Transport)))
	}
	if meta.IsDefined("gateway", "secret") {
		cfg.Gateway.Secret = raw.Gateway.Secret
	}
	if meta.IsDefined("cloud", "email") {
		cfg.Cloud.Email = strings.TrimSpace(raw.Cloud.Email)
	}
	if meta.IsDefined("cloud", "password") {
		cfg.Cloud.Password = raw.Cloud.Password
	}
	if meta.IsDefined("cloud", "cache_path") {
		cfg.Cloud.CachePath = strings.TrimSpace(raw.Cloud.CachePath)
	}
	if meta.IsDefined("cloud", "master_secret") {
		cfg.Cloud.MasterSecret = raw.Cloud.MasterSecret
	}
	if meta.IsDefined("cloud", "max_attempts") {
		cfg.Cloud.MaxAttempts = raw.Cloud.MaxAttempts
	}
	if meta.IsDefined("keepalive", "url") {
		cfg.KeepAlive.URL = strings.TrimSpace(raw.KeepAlive.URL)
	}
	return nil
}
