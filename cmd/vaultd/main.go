package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/vaultwarren/pkg/api"
	"github.com/cuemby/vaultwarren/pkg/audit"
	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/config"
	"github.com/cuemby/vaultwarren/pkg/core"
	"github.com/cuemby/vaultwarren/pkg/hardening"
	"github.com/cuemby/vaultwarren/pkg/lease"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vaultd",
	Short:   "vaultd - sealed secrets vault",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"vaultd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(serverCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the vault server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg := config.FromEnv()

	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: true})
	logger := log.WithComponent("main")

	if !cfg.DisableMlock {
		if err := hardening.LockMemory(); err != nil {
			logger.Warn().Err(err).Msg("failed to lock process memory")
		}
	}

	backend, err := storage.Open(cfg.StorageBackend, cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("open storage backend: %w", err)
	}

	b := barrier.New(backend)

	backends := []audit.Backend{audit.NewLogBackend()}
	if cfg.AuditFilePath != "" {
		fileBackend, err := audit.NewFileBackend(cfg.AuditFilePath)
		if err != nil {
			return fmt.Errorf("open audit file backend: %w", err)
		}
		backends = append(backends, fileBackend)
	}
	auditManager, err := audit.New(backends...)
	if err != nil {
		return fmt.Errorf("initialize audit manager: %w", err)
	}

	c := core.New(b, auditManager)
	if b.IsUnsealed() {
		if err := c.LoadMounts(context.Background()); err != nil {
			return fmt.Errorf("load mount table: %w", err)
		}
	}

	worker := lease.NewExpiryWorker(c.Leases, cfg.LeaseScanInterval)
	worker.Start()
	defer worker.Stop()

	server := api.NewServer(c)

	httpServer := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Msg("vault http api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
