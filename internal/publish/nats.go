// Package publish forwards engine events to NATS JetStream for downstream
// consumers (indexers, alerting). Publishing is best-effort; the Postgres
// journal remains the durable record.
package publish

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"stablevault/internal/event"
	"stablevault/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Subjects follow the pattern: vault.events.{event_type}.{asset}
const subjectPrefix = "vault.events"

// Publisher drains the event channel and publishes to JetStream.
type Publisher struct {
	js      jetstream.JetStream
	input   <-chan event.Event
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, input <-chan event.Event, metrics *observability.Metrics, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:      js,
		input:   input,
		metrics: metrics,
		log:     log.With().Str("component", "publisher").Logger(),
	}
}

// Run publishes events until ctx is cancelled or the channel closes.
// Publish failures are logged and counted, never retried; consumers that
// need completeness read the journal.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, evt); err != nil {
				p.log.Warn().Err(err).Int64("seq", evt.Sequence).
					Str("type", string(evt.Type)).Msg("publish failed")
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
				continue
			}
			if p.metrics != nil {
				p.metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, evt event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", subjectPrefix, evt.Type)
	if evt.Asset != "" {
		subject = fmt.Sprintf("%s.%s", subject, evt.Asset)
	}

	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates the outbound events stream if absent.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VAULT_EVENTS",
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}
