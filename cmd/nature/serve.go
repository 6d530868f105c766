package main

import (
	"context"
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/wonhochoi1/nature"
	"github.com/wonhochoi1/nature/internal/api/handler/endpoints"
	"github.com/wonhochoi1/nature/internal/api/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg := nature.GetConfig()
	gin.SetMode(gin.ReleaseMode)
	if cfg.Mode == "dev" {
		gin.SetMode(gin.DebugMode)
	}

	runner, cleanup, err := buildRunner(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	router, err := graceful.Default(graceful.WithAddr(cfg.ApiPort))
	if err != nil {
		return err
	}
	defer router.Close()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	endpoints.RunHandler(router, service.NewRunService(runner))

	nature.Logger.Debug().Msgf("Starting run API on port %s", cfg.ApiPort)
	if err := router.RunWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		nature.Logger.Error().Err(err).Msg("Server stopped")
		return err
	}
	return nil
}
