package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xrepost/internal/accounts"
	"xrepost/internal/auth"
	"xrepost/internal/fetchctl"
	"xrepost/internal/logs"
	"xrepost/internal/middleware"
	"xrepost/internal/settings"
	"xrepost/internal/tweets"
	"xrepost/pkg/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the collection scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		a.runNotifier(ctx)

		fleet := pipeline.NewFleet(context.WithoutCancel(ctx), a.deps, a.opts)
		if cfg.Fetch.Autostart {
			fleet.Start()
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           setupRouter(a, fleet),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				fleet.Stop()
				return err
			}
		}

		logger.Info("shutting down")
		fleet.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func setupRouter(a *app, fleet fetchctl.Controller) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORS(a.cfg.Server.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	auth.SetupRoutes(authGroup, a.db, a.twitter, a.cfg.Twitter.FrontendURL)

	protected := middleware.AuthRequired(a.cfg.Server.APIToken)

	fetchGroup := r.Group("/fetch", protected)
	fetchctl.SetupRoutes(fetchGroup, fleet)

	logsGroup := r.Group("/logs", protected)
	logs.SetupRoutes(logsGroup, a.db)

	apiGroup := r.Group("/api", protected)
	accounts.SetupRoutes(apiGroup, a.db)
	tweets.SetupRoutes(apiGroup, a.db, a.twitter, a.notifier)
	settings.SetupRoutes(apiGroup, a.db)

	a.logger.Info("routes initialized", "routes", len(r.Routes()))
	return r
}
