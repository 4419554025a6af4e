package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/daviddao/calsync/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func (a *app) cmdServe(args []string) int {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := flags.String("addr", a.cfg.Addr, "listen address")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	if !a.cfg.VAPID.Configured() {
		a.log.Warn("VAPID keys not set; push endpoints will answer 412 (run 'cs init --vapid')")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.New(a.engine, a.registry, a.dispatcher, a.log).Handler(a.cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	errc := make(chan error, 1)
	go func() {
		a.log.Info("listening",
			zap.String("addr", *addr),
			zap.String("data", a.cfg.DataPath),
			zap.Bool("push", a.cfg.VAPID.Configured()),
			zap.Bool("notices", a.notifier != nil),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "cs: serve: %v\n", err)
			return 1
		}
	case s := <-sig:
		a.log.Info("shutting down", zap.String("signal", s.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Error("shutdown", zap.Error(err))
			return 1
		}
	}
	// main calls Close after this returns, draining the serializer.
	return 0
}
