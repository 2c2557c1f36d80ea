package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mrarosh/Pear-code/internal/api"
	"github.com/mrarosh/Pear-code/internal/config"
	"github.com/mrarosh/Pear-code/internal/keepalive"
	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/mrarosh/Pear-code/internal/pairing"
	"github.com/mrarosh/Pear-code/internal/protocol"
	"github.com/mrarosh/Pear-code/internal/sessionstore"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configFile := flag.String("config", "", "path to a TOML config file")
	addr := flag.String("addr", "", "listen address (overrides PORT)")
	flag.Parse()

	var overrides config.Overrides
	if *configFile != "" {
		overrides.ConfigFile = configFile
	}
	if *addr != "" {
		overrides.Addr = addr
	}

	logger.Init("pear-server")

	// Load configuration
	cfg, err := config.Load(overrides)
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Errorf("Invalid log level: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(level)

	// Set Gin mode
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Gateway client factory
	signer, err := protocol.NewTokenSigner(cfg.Gateway.Secret, time.Minute)
	if err != nil {
		logger.Errorf("Failed to create token signer: %v", err)
		os.Exit(1)
	}
	factory, err := protocol.NewFactory(cfg.Gateway.URL, string(cfg.Gateway.Transport), signer)
	if err != nil {
		logger.Errorf("Failed to create gateway factory: %v", err)
		os.Exit(1)
	}

	store := sessionstore.New()
	orch := pairing.New(cfg.Pairing, store, factory)

	router := api.NewRouter(api.Deps{
		Pairer:         orch,
		AllowedOrigins: cfg.AllowedOrigins,
		Started:        time.Now(),
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("Pairing server starting on http://localhost%s", cfg.Addr)
		logger.Infof("Gateway: %s (%s), failure policy: %s", cfg.Gateway.URL, cfg.Gateway.Transport, cfg.Pairing.FailurePolicy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return keepalive.Heartbeat(gctx, cfg.KeepAlive.Interval)
	})

	if cfg.KeepAlive.URL != "" {
		pinger := keepalive.New(cfg.KeepAlive.URL, cfg.KeepAlive.Interval, cfg.KeepAlive.Timeout)
		g.Go(func() error {
			return pinger.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// In-flight attempts resolve on their own timers; wait for their
		// cleanup before exiting.
		done := make(chan struct{})
		go func() {
			orch.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warnf("Shutdown timed out with %d sessions still stored", store.Len())
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("Server error: %v", err)
		os.Exit(1)
	}
}
