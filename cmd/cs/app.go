package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/daviddao/calsync/pkg/config"
	"github.com/daviddao/calsync/pkg/engine"
	"github.com/daviddao/calsync/pkg/logging"
	"github.com/daviddao/calsync/pkg/model"
	"github.com/daviddao/calsync/pkg/notify"
	"github.com/daviddao/calsync/pkg/push"
	"github.com/daviddao/calsync/pkg/queue"
	"github.com/daviddao/calsync/pkg/store"
)

const pingTimeout = 2 * time.Second

// app holds shared state for all CLI subcommands.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	store      store.StoreInterface
	queue      *queue.Serializer
	engine     *engine.Engine
	registry   *push.Registry
	dispatcher *push.Dispatcher
	notifier   *notify.RedisPublisher // nil unless CALSYNC_REDIS_URL is set
}

// newApp resolves configuration and opens the store.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, "stderr")
	if err != nil {
		return nil, err
	}
	return openApp(cfg, log)
}

// openApp wires the store, serializer, engine and push components for cfg.
func openApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	st, err := store.Open(cfg.StoreKind, cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open store %q: %w", cfg.DataPath, err)
	}

	a := &app{cfg: cfg, log: log, store: st, queue: queue.New(log)}

	opts := []engine.Option{engine.WithLogger(log)}
	if cfg.RedisURL != "" {
		pub, err := notify.NewRedisPublisher(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			a.Close()
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		if err := pub.Ping(ctx); err != nil {
			// Notices are best effort.
			log.Warn("redis unreachable", zap.String("channel", cfg.RedisChannel), zap.Error(err))
		}
		cancel()
		a.notifier = pub
		opts = append(opts, engine.WithNotifier(pub))
	}

	a.engine = engine.New(st, a.queue, opts...)
	a.registry = push.NewRegistry()
	a.dispatcher = push.NewDispatcher(a.registry, push.NewWebPushSender(cfg.VAPID), cfg.VAPID, log)
	return a, nil
}

// Close drains pending writes and change notices, then releases the store.
func (a *app) Close() {
	a.queue.Close()
	if a.engine != nil {
		a.engine.Close()
	}
	if a.notifier != nil {
		_ = a.notifier.Close()
	}
	_ = a.store.Close()
	_ = a.log.Sync()
}

// printEvent writes one record as a single human-readable line.
func printEvent(e model.Event) {
	if e.Deleted {
		fmt.Printf("[ts=%d] %s deleted\n", e.UpdatedAt, e.ID)
		return
	}
	when := e.Start
	if e.AllDay {
		when += " (all day)"
	}
	reminder := ""
	if e.ReminderMinutes != nil {
		reminder = fmt.Sprintf(" reminder=%dm", *e.ReminderMinutes)
	}
	fmt.Printf("[ts=%d] %s %q %s%s\n", e.UpdatedAt, e.ID, e.Title, when, reminder)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
