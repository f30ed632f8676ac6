package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/broadcast"
	"github.com/contestops/contestfeed/internal/eventlog"
	"github.com/contestops/contestfeed/internal/gateway"
	"github.com/contestops/contestfeed/internal/model"
	"github.com/contestops/contestfeed/internal/notify"
	"github.com/contestops/contestfeed/internal/server"
	"github.com/contestops/contestfeed/internal/snapshot"
)

func serveCmd() *cobra.Command {
	var dataFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the contest event-feed server",
		Long: `Run the contest event-feed server.

The server exposes the event feed as NDJSON over HTTP and WebSocket,
a one-shot snapshot endpoint, a compressed archive download, and a
synchronous clarification submission endpoint.

On first start the event log is seeded with a snapshot of the loaded
contest; on restart the log is recovered and ids continue where they
left off.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			logger.Info("configuration loaded",
				zap.String("port", cfg.Server.Port),
				zap.String("contestID", cfg.Contest.ID),
				zap.String("logDir", cfg.Feed.LogDir),
				zap.Duration("heartbeatPeriod", cfg.Feed.HeartbeatPeriod()),
				zap.Duration("idleThreshold", cfg.Feed.IdleThreshold()),
			)

			// Contest model
			var m *model.Memory
			var err error
			if dataFile != "" {
				m, err = model.LoadFile(dataFile)
				if err != nil {
					return err
				}
				logger.Info("contest bundle loaded",
					zap.String("file", dataFile),
					zap.Int("teams", len(m.Teams())),
					zap.Int("problems", len(m.Problems())),
				)
			} else {
				m = model.NewMemory(model.Info{ID: cfg.Contest.ID, Name: cfg.Contest.Name})
			}

			// Durable event log
			log, err := eventlog.Open(cfg.Feed.LogDir, cfg.Contest.ID, logger)
			if err != nil {
				return err
			}
			defer log.Close()

			// Operator notifications
			notifier := notify.New(&notify.Config{
				Enabled:  cfg.Notify.Enabled,
				Server:   cfg.Notify.Server,
				Topic:    cfg.Notify.Topic,
				Priority: cfg.Notify.Priority,
				Tags:     cfg.Notify.Tags,
				Token:    cfg.Notify.Token,
			}, logger)

			// Broadcast engine
			engine, err := broadcast.New(log, logger,
				broadcast.WithStorageFailureHook(func(failure error) {
					nctx, ncancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer ncancel()
					if err := notifier.StorageFailure(nctx, cfg.Contest.ID, failure); err != nil {
						logger.Warn("storage failure notification failed", zap.Error(err))
					}
				}),
			)
			if err != nil {
				return err
			}

			builder := snapshot.New(logger)
			if err := engine.Seed(m, builder); err != nil {
				return err
			}
			logger.Info("event log ready",
				zap.String("path", log.Path()),
				zap.Int("events", log.Len()),
			)

			// Model change listener
			dispatcher := broadcast.NewDispatcher(engine, logger, func() {
				nctx, ncancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer ncancel()
				if err := notifier.ContestFinalized(nctx, cfg.Contest.ID, engine.SessionCount()); err != nil {
					logger.Warn("finalization notification failed", zap.Error(err))
				}
			})
			removeListener := m.AddListener(dispatcher.Listen)
			defer removeListener()

			// Idle keepalive
			heartbeat := broadcast.NewHeartbeat(engine, cfg.Feed.HeartbeatPeriod(), cfg.Feed.IdleThreshold(), logger)
			go heartbeat.Run(ctx)

			// Confirmation gateway
			gw := gateway.New(engine, cfg.Feed.ConfirmPoll(), logger)

			srv := server.NewServer(m, m, engine, log, builder, gw, cfg, logger)
			router := server.NewRouter(srv, logger)

			// No WriteTimeout: the feed endpoint holds connections open
			// indefinitely and a write deadline would sever live streams.
			httpServer := &http.Server{
				Addr:        ":" + cfg.Server.Port,
				Handler:     router,
				ReadTimeout: time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down server...")

			engine.CloseAll()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
				return err
			}

			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "contest bundle JSON file to load at startup")

	return cmd
}
