package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfchat/internal/app"
	cfgpkg "github.com/local/pdfchat/internal/config"
	logpkg "github.com/local/pdfchat/internal/logger"
	"github.com/local/pdfchat/internal/metrics"
	"github.com/local/pdfchat/internal/server"
)

func main() {
	cfg := cfgpkg.Load()

	if err := app.InitLogging(cfg, logpkg.Options{Service: "pdfchat"}); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	defer logpkg.Close()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := app.Build(ctx, cfg)
	defer deps.Close()

	srv := server.New(server.Options{
		Completer:       deps.Completer,
		Loader:          deps.Loader,
		Health:          deps.Health,
		MaxContextChars: cfg.Context.MaxChars,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		WaitTimeout:     cfg.Completion.ResourceTimeout * 2,
	})
	defer srv.Close()

	httpSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: srv.Handler()}
	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("shutdown complete")
}
