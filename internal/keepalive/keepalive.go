// Package keepalive pings the service's own health endpoint so that hosts
// which idle-stop quiet processes keep it running.
package keepalive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/mrarosh/Pear-code/internal/metrics"
)

// Pinger periodically GETs <base>/health.
type Pinger struct {
	url      string
	interval time.Duration
	client   *resty.Client
}

// New returns a Pinger for baseURL.
func New(baseURL string, interval, timeout time.Duration) *Pinger {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pinger{
		url:      strings.TrimRight(baseURL, "/") + "/health",
		interval: interval,
		client:   resty.New().SetTimeout(timeout),
	}
}

// Ping performs one health check.
func (p *Pinger) Ping(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		metrics.RecordKeepAlive(false)
		return fmt.Errorf("health check failed: %w", err)
	}
	if !resp.IsSuccess() {
		metrics.RecordKeepAlive(false)
		return fmt.Errorf("health check failed: status %d", resp.StatusCode())
	}
	metrics.RecordKeepAlive(true)
	logger.Infof("[keepalive] health check successful: %d", resp.StatusCode())
	return nil
}

// Run pings immediately and then every interval until ctx is done.
func (p *Pinger) Run(ctx context.Context) error {
	logger.Infof("[keepalive] pinging %s every %s", p.url, p.interval)
	p.pingLogged(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.pingLogged(ctx)
		}
	}
}

func (p *Pinger) pingLogged(ctx context.Context) {
	if err := p.Ping(ctx); err != nil && ctx.Err() == nil {
		logger.Warnf("[keepalive] %v", err)
	}
}

// Heartbeat logs a line every interval until ctx is done.
func Heartbeat(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			logger.Infof("[keepalive] server is alive")
		}
	}
}
