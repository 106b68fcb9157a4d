package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/convoke/internal/broker"
	"github.com/nextlevelbuilder/convoke/internal/config"
	"github.com/nextlevelbuilder/convoke/internal/logging"
)

var (
	brokerHost string
	brokerPort int
)

func brokerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run the convoke session broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBroker()
		},
	}
	cmd.Flags().StringVar(&brokerHost, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&brokerPort, "port", 0, "listen port (overrides config)")
	return cmd
}

// runBroker wires transport -> router -> sessions and owns the heartbeat
// scheduler, blocking until SIGINT/SIGTERM, then draining the broker's
// shutdown sequence. Exit code is non-zero on startup failure.
func runBroker() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if brokerHost != "" {
		cfg.Gateway.Host = brokerHost
	}
	if brokerPort != 0 {
		cfg.Gateway.Port = brokerPort
	}

	logFormat := logging.FormatJSON
	if cfg.Logging.Format == "text" || verbose {
		logFormat = logging.FormatText
	}
	level := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := logging.New(logFormat, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := broker.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("construct broker: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	srv := &http.Server{Addr: addr, Handler: b.Mux()}

	b.StartMaintenance(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("broker listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("broker shutting down")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
