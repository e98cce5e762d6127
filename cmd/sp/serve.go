package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"studyplan/internal/app"
	"studyplan/internal/config"
	"studyplan/internal/logging"
	"studyplan/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var origins []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig(workspace)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret (or STUDYPLAN_AUTH_JWT_SECRET) is required for bearer auth")
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			logger, closer := logging.New("studyplan: ", logOptions(cfg, true))
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Open(ctx, cfg, app.Options{Workspace: workspace, Logger: logger})
			if err != nil {
				closer.Close()
				return err
			}
			a.AddCloser(closer)
			defer a.Close()

			watchConfig(workspace, logger)

			handler, err := server.New(server.Config{
				App:              a,
				BasePath:         cfg.Server.BasePath,
				SessionCacheSize: cfg.Server.SessionCacheSize,
				SessionTTL:       cfg.Server.SessionTTL.Std(),
				OriginPatterns:   origins,
				Logger:           logger,
			})
			if err != nil {
				return err
			}
			defer handler.Close()

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Studyplan API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "extra browser origins allowed on the change feed")
	return cmd
}

// watchConfig logs edits to studyplan.yml while serving. Changes apply on
// the next restart.
func watchConfig(workspace string, logger *log.Logger) {
	path := config.Path(workspace)
	if _, err := os.Stat(path); err != nil {
		return
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		logger.Printf("config watch: %v", err)
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if _, err := config.FromFile(path); err != nil {
			logger.Printf("config %s changed but is invalid: %v", e.Name, err)
			return
		}
		logger.Printf("config %s changed; restart to apply", e.Name)
	})
	v.WatchConfig()
}
