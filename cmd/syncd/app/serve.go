package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	daemon "github.com/GlobalTax/Crmcapittal-sub010/internal/app"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync daemon",
		Long: `Start the sync daemon. The configuration file lists the sessions to keep
in sync, their data sources and polling settings, the upstream credentials,
where session state is persisted, and optional NATS and telemetry settings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	cmd.Flags().String("address", "", "Address to listen on (overrides server.address)")
	cmd.Flags().Duration("shutdown-timeout", defaultGracefulTimeout, "Time allowed for a graceful shutdown")
	for _, name := range []string{"address", "shutdown-timeout"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := configPath(v)
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration", "path", path, "sessions", len(cfg.Sessions))

	opts := []daemon.SyncAppOptions{daemon.WithConfig(cfg)}
	if addr := v.GetString("address"); addr != "" {
		opts = append(opts, daemon.WithAddress(addr))
	}

	syncApp, err := daemon.NewSyncApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create sync app: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- syncApp.Start()
	}()

	timeout := v.GetDuration("shutdown-timeout")
	if timeout <= 0 {
		timeout = defaultGracefulTimeout
	}

	select {
	case err := <-errCh:
		// Start failed before any shutdown was requested
		return errors.Join(err, syncApp.Stop(timeout))
	case <-ctx.Done():
	}

	stopErr := syncApp.Stop(timeout)
	return errors.Join(<-errCh, stopErr)
}
