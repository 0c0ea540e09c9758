// Package natspub forwards committed billing events to a NATS JetStream
// stream so services outside this process can consume them.
package natspub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smallbiznis/crmbilling/internal/events"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("nats_not_connected")

type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher is an events.Handler that writes each event to
// "<prefix>.<event type>", deduplicated by event id.
type Publisher struct {
	js         jetStream
	prefix     string
	log        *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewPublisher(js jetStream, prefix string, log *zap.Logger) *Publisher {
	return &Publisher{
		js:         js,
		prefix:     strings.Trim(prefix, "."),
		log:        log.Named("events.natspub"),
		maxRetries: 3,
		backoff:    time.Second,
	}
}

func (p *Publisher) Subject(t events.Type) string {
	if p.prefix == "" {
		return string(t)
	}
	return p.prefix + "." + string(t)
}

func (p *Publisher) Handle(ctx context.Context, event events.Event) error {
	if p == nil || p.js == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := p.Subject(event.Type)
	var ack *nats.PubAck
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		ack, err = p.js.Publish(subject, data, nats.MsgId(event.ID), nats.Context(ctx))
		if err == nil {
			break
		}
		p.log.Warn("publish attempt failed",
			zap.Int("attempt", attempt),
			zap.String("subject", subject),
			zap.Error(err),
		)
		if attempt == p.maxRetries {
			break
		}
		// 1s, 2s, 4s
		wait := p.backoff * time.Duration(1<<uint(attempt-1))
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", subject, ctx.Err())
		case <-time.After(wait):
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s after %d attempts: %w", subject, p.maxRetries, err)
	}

	p.log.Debug("event published",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("stream", ack.Stream),
		zap.Uint64("sequence", ack.Sequence),
	)
	return nil
}
