package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"plate-ingest/config"
	"plate-ingest/internal/api/rest"
	"plate-ingest/internal/api/telegram"
	"plate-ingest/internal/container"
	"plate-ingest/internal/infrastructure/logging"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when TELEGRAM_TOKEN is set, the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	c, err := container.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		if bot, err = telegram.NewBot(cfg.TelegramToken, c.Pipeline, cfg.TelegramWorkers, log); err != nil {
			return fmt.Errorf("telegram bot: %w", err)
		}
	}

	handler := rest.NewPlateHandler(c.Pipeline, c.Plates, cfg.MaxUploadBytes, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rest.NewRouter(handler, c.Metrics.Registry(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if bot != nil {
		g.Go(func() error {
			log.Info("telegram bot is running")
			return bot.Run(ctx)
		})
	}

	return g.Wait()
}
