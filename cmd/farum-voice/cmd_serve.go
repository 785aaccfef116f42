package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/farum-voice/internal/adapters/http"
	"github.com/PabloGalante/farum-voice/internal/app/session"
	"github.com/PabloGalante/farum-voice/internal/app/tools"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

const shutdownTimeout = 15 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (or FARUM_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := observability.Logger()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions := session.NewManager(a.registry, a.history, a.moderator,
		tools.NewDefaultTools(a.profiles, a.history)...)
	handler := httpadapter.NewServer(httpadapter.Deps{
		History:      a.history,
		Profiles:     a.profiles,
		Registry:     a.registry,
		Sessions:     sessions,
		HistoryLimit: cfg.HistoryLimit,
	})

	port := cfg.Port
	if servePort != "" {
		port = servePort
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Farum voice API listening", "port", port, "storage", cfg.StorageBackend, "scenarios", a.registry.Scenarios())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	// Websocket handlers are hijacked and not waited on by Shutdown.
	return sessions.CloseAll(shutdownCtx)
}
