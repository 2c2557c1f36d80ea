package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrarosh/Pear-code/internal/bot"
	"github.com/mrarosh/Pear-code/internal/keepalive"
	"github.com/mrarosh/Pear-code/internal/protocol"
	"github.com/spf13/cobra"
)

func (a *app) newKeepAliveCmd() *cobra.Command {
	var (
		url      string
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Ping a server's /health endpoint until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = a.serverURL()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return keepalive.New(url, interval, timeout).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "base URL to ping (defaults to --server)")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "ping interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-ping timeout")
	return cmd
}

func (a *app) newBotCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Answer .session commands through the protocol gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			signer, err := protocol.NewTokenSigner(cfg.Gateway.Secret, time.Minute)
			if err != nil {
				return err
			}
			factory, err := protocol.NewFactory(cfg.Gateway.URL, string(cfg.Gateway.Transport), signer)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m, closeFn, err := openManager(cfg.Cloud)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Fprintf(cmd.OutOrStdout(), "Bot %s listening via %s\n", sessionID, cfg.Gateway.URL)
			return bot.New(m).Run(ctx, sessionID, factory)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "bot", "gateway session id for the bot")
	return cmd
}
