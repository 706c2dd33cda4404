// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianTwin/services/planner/api"
	"github.com/AleutianAI/AleutianTwin/services/planner/config"
	"github.com/AleutianAI/AleutianTwin/services/planner/knowledge"
	"github.com/AleutianAI/AleutianTwin/services/planner/mapek"
	"github.com/AleutianAI/AleutianTwin/services/planner/record"
	"github.com/AleutianAI/AleutianTwin/services/planner/transport/kafkaio"
	"github.com/AleutianAI/AleutianTwin/services/planner/twin"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the planning API and run the control loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable gin debug mode")
	return cmd
}

// serve runs the API, the optional control loop and the optional
// knowledge watcher until ctx is done or one of them fails.
func serve(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.Observability, nil)
	if err != nil {
		return err
	}
	defer logger.Close()
	slogger := logger.Slog()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			slogger.Warn("shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Knowledge.Watch {
		w, err := knowledge.NewWatcher(a.knowledge, slogger, func(err error) {
			if err != nil {
				slogger.Error("knowledge reload rejected", slog.String("error", err.Error()))
			}
		})
		if err != nil {
			return fmt.Errorf("watch knowledge: %w", err)
		}
		defer w.Stop()
		g.Go(func() error {
			w.Start(ctx)
			return nil
		})
	}

	if cfg.Loop.Enabled {
		loop, closeLoop, err := newLoop(cfg, a)
		if err != nil {
			return err
		}
		defer closeLoop()
		g.Go(func() error {
			if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("control loop: %w", err)
			}
			return nil
		})
	}

	handlers := api.NewHandlers(a.planner,
		api.WithBreaker(a.stepper.Breaker()),
		api.WithLogger(slogger),
		api.WithPlanTimeout(cfg.Budget.TimeLimit+time.Second),
	)
	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		slogger.Info("http server listening", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newLoop builds the control loop over the configured snapshot source.
// The returned func releases source connections.
func newLoop(cfg config.Config, a *app) (*mapek.Loop, func(), error) {
	slogger := a.logger.Slog()
	recorders := record.Multi{record.NewLogRecorder(slogger)}
	var closers []func()

	if cfg.Influx.Enabled() {
		influx := record.NewInfluxRecorder(cfg.Influx)
		recorders = append(recorders, influx)
		closers = append(closers, influx.Close)
	}

	var monitor mapek.Monitor
	var executor mapek.Executor
	switch cfg.Loop.Source {
	case config.SourceKafka:
		m := kafkaio.NewMonitor(kafkaio.NewReader(cfg.Kafka.Config), cfg.Kafka.Config, slogger)
		e := kafkaio.NewExecutor(kafkaio.NewWriter(cfg.Kafka.Config), slogger)
		monitor, executor = m, e
		closers = append(closers, func() { _ = m.Close() }, func() { _ = e.Close() })
	default:
		zone := twin.New(a.thermal, twin.InitialSnapshot(cfg.Twin.InitialTemperature),
			twin.WithSpeed(cfg.Twin.Speed),
			twin.WithTwinLogger(slogger),
		)
		monitor, executor = zone, zone
	}

	loop := mapek.NewLoop(monitor, a.planner, executor, cfg.Loop.Interval,
		mapek.WithRecorder(recorders),
		mapek.WithLoopLogger(slogger),
	)
	return loop, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}
