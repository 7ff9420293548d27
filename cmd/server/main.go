package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/hexroom-backend/internal/config"
	"github.com/DoyleJ11/hexroom-backend/internal/gateway"
	"github.com/DoyleJ11/hexroom-backend/internal/httpapi"
	"github.com/DoyleJ11/hexroom-backend/internal/logging"
	"github.com/DoyleJ11/hexroom-backend/internal/session"
	"github.com/DoyleJ11/hexroom-backend/internal/store"
	"github.com/DoyleJ11/hexroom-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(ctx, log, store.Options{
		CodeLength:      cfg.CodeLength,
		CodeMaxAttempts: cfg.CodeMaxAttempts,
		EmptyRoomGrace:  cfg.EmptyRoomGrace,
	})
	g := gateway.New(st, session.NewRegistry(), log)

	wsHandler := ws.Handler(g, log, ws.Options{
		OutboxSize:         cfg.OutboxSize,
		WriteTimeout:       cfg.WriteTimeout,
		PingInterval:       cfg.PingInterval,
		OriginPatterns:     cfg.AllowedOrigins,
		InsecureSkipVerify: cfg.Dev,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(st, g, wsHandler, log),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		shutdownErr := srv.Shutdown(sctx)
		st.Shutdown()
		if shutdownErr != nil {
			return multierr.Append(fmt.Errorf("http shutdown: %w", shutdownErr), srv.Close())
		}
		return nil
	})

	return grp.Wait()
}
