package natspub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smallbiznis/crmbilling/internal/config"
	"github.com/smallbiznis/crmbilling/internal/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events.natspub",
	fx.Invoke(Register),
)

// Register connects to NATS, ensures the billing stream exists and
// subscribes the publisher to every event. It is a no-op without NATS_URL.
func Register(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, d *events.Dispatcher) error {
	if !cfg.NATS.Enabled() {
		log.Info("nats disabled, events stay in-process")
		return nil
	}
	log = log.Named("events.natspub")

	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.AppName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:        cfg.NATS.Stream,
		Description: "Subscription and invoice lifecycle events",
		Subjects:    []string{cfg.NATS.Subject + ".>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  10 * time.Minute,
		Discard:     nats.DiscardOld,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		log.Warn("could not create stream, assuming it exists", zap.String("stream", cfg.NATS.Stream), zap.Error(err))
	}

	d.Subscribe("events.natspub", NewPublisher(js, cfg.NATS.Subject, log))
	log.Info("nats publisher registered",
		zap.String("stream", cfg.NATS.Stream),
		zap.String("subject_prefix", cfg.NATS.Subject),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return conn.Drain()
		},
	})
	return nil
}
