package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/luxquant/omnitron/api"
	"github.com/luxquant/omnitron/core"
	"github.com/luxquant/omnitron/internal/logging"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the access gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		logger := logging.New(cfg.LogLevel)

		repo, err := core.OpenRepository(cfg)
		if err != nil {
			return fmt.Errorf("opening record store: %w", err)
		}
		defer repo.Close()

		services := core.New(cfg, repo, logger)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() {
			if err := services.Run(ctx); err != nil {
				logger.Error("background services failed", "error", err)
			}
		}()

		a := api.New(services, cfg.Admin.Token, api.WithLogger(logger))

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              cfg.Admin.Listen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("admin server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("admin api listening", "address", cfg.Admin.Listen)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
