package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/botflow/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the scheduler",
	Long: `Loads blueprints, restores every tenant's scheduled jobs and serves the engine,
scheduler and webhook API over HTTP until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := cli.NewApp(cfg, logger)
		if err != nil {
			fmt.Printf("Error initializing botflow: %v\n", err)
			os.Exit(1)
		}
		if err := app.Start(ctx); err != nil {
			logger.Error("startup failed", "err", err)
			_ = app.Close(context.Background())
			os.Exit(1)
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           app.Handler(),
			ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("botflow server listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		exitCode := 0
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "err", err)
				exitCode = 1
			}
		case <-ctx.Done():
			logger.Info("shutdown requested")
		}

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", cfg.HTTP.ShutdownTimeout, "err", err)
			_ = srv.Close()
		}
		if err := app.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "err", err)
		}
		logger.Info("botflow server stopped")
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
}
