package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landslide-cli/internal/api"
	"github.com/sells-group/landslide-cli/internal/config"
	"github.com/sells-group/landslide-cli/internal/monitoring"
	"github.com/sells-group/landslide-cli/internal/report"
	"github.com/sells-group/landslide-cli/internal/store"
)

const shutdownTimeout = 30 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the susceptibility API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		srvAPI := api.NewServer(env.Pipeline, env.Store, serverOptions(cfg))

		if checker := newChecker(cfg.Monitoring, env.Store); checker != nil {
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvAPI.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// serverOptions maps the config onto API options.
func serverOptions(c *config.Config) api.Options {
	return api.Options{
		Defaults:     requestDefaults(c.Model),
		AOIBufferM:   c.Model.AOIBufferM,
		MaxBodyBytes: c.Server.MaxBodyBytes,
		CORSOrigins:  c.Server.CORSOrigins,
		Reports:      report.NewBuilder(nil, overlayOrder()),
	}
}

// newChecker returns the run health checker, or nil when monitoring is off.
func newChecker(mc config.MonitoringConfig, st store.Store) *monitoring.Checker {
	if !mc.Enabled || st == nil {
		return nil
	}
	stale := time.Duration(mc.StaleRunMinutes) * time.Minute
	collector := monitoring.NewCollector(st, nil, stale)
	alerter := monitoring.NewAlerter(mc, nil)
	return monitoring.NewChecker(collector, alerter, mc, nil)
}
