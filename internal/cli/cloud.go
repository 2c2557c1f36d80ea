package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrarosh/Pear-code/internal/cloud"
	"github.com/mrarosh/Pear-code/internal/config"
	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/spf13/cobra"
)

const verifyTimeout = 30 * time.Second

// openManager is replaced in tests.
var openManager = func(cfg config.CloudConfig) (*cloud.Manager, func() error, error) {
	var (
		cache   cloud.Cache
		closeFn = func() error { return nil }
	)
	if cfg.MasterSecret == "" {
		logger.Warnf("[cloud] CLOUD_MASTER_SECRET not set, session cache is in-memory only")
		cache = &cloud.MemoryCache{}
	} else {
		sqlite, err := cloud.OpenSQLiteCache(cfg.CachePath, []byte(cfg.MasterSecret))
		if err != nil {
			return nil, nil, err
		}
		cache = sqlite
		closeFn = sqlite.Close
	}

	m := cloud.NewManager(cloud.NewMegaProvider(), cache, managerOptions(cfg))
	return m, func() error {
		_ = m.Close()
		return closeFn()
	}, nil
}

func managerOptions(cfg config.CloudConfig) cloud.Options {
	return cloud.Options{
		Email:         cfg.Email,
		Password:      cfg.Password,
		Cooldown:      cfg.AuthCooldown,
		RateLimitWait: cfg.RateLimitWait,
		TTL:           cfg.CacheTTL,
		MaxAttempts:   cfg.MaxAttempts,
	}
}

func (a *app) withManager(fn func(m *cloud.Manager) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	m, closeFn, err := openManager(cfg.Cloud)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(m)
}

func (a *app) newCloudCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloud",
		Short: "Manage the cloud storage session",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "verify",
			Short: "Check the configured cloud credentials",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withManager(func(m *cloud.Manager) error {
					ctx, cancel := context.WithTimeout(cmd.Context(), verifyTimeout)
					defer cancel()

					if err := m.Verify(ctx); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Hint: %s\n", cloud.Hint(err))
						return fmt.Errorf("cloud credentials rejected: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Cloud credentials OK")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "session",
			Short: "Print the current cloud session id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withManager(func(m *cloud.Manager) error {
					id, err := m.GetSession(cmd.Context())
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Hint: %s\n", cloud.Hint(err))
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "upload <file>",
			Short: "Upload a file and print its public link",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				return a.withManager(func(m *cloud.Manager) error {
					link, err := m.Upload(cmd.Context(), f, filepath.Base(args[0]))
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), link)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear-cache",
			Short: "Forget the cached cloud session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withManager(func(m *cloud.Manager) error {
					if err := m.ClearCache(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Session cache cleared")
					return nil
				})
			},
		},
	)
	return cmd
}
