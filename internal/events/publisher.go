// Package events publishes caption events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"live-caption-service/internal/models"
	"live-caption-service/internal/observability/metrics"
	"live-caption-service/internal/schema"
)

// Publisher publishes settled lines to the history topic and live transcript
// snapshots to the live topic.
type Publisher struct {
	writerLive    *kafka.Writer
	writerHistory *kafka.Writer
	principal     string
	topicLive     string
	topicHistory  string
	enabled       bool
	validator     *schema.Validator
	metrics       *metrics.Metrics
	now           func() time.Time
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicLive    string
	TopicHistory string
	Principal    string
	Enabled      bool
}

// New creates a Kafka publisher. With a nil config, Enabled unset or no
// brokers it only logs.
func New(cfg *Config) *Publisher {
	p := &Publisher{
		validator: schema.MustNew(),
		metrics:   metrics.DefaultMetrics,
		now:       time.Now,
	}

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return p
	}

	p.principal = cfg.Principal
	p.topicLive = cfg.TopicLive
	p.topicHistory = cfg.TopicHistory

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerLive = newWriter(cfg.Brokers, cfg.TopicLive, transport)
	p.writerHistory = newWriter(cfg.Brokers, cfg.TopicHistory, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicLive", cfg.TopicLive).
		Str("topicHistory", cfg.TopicHistory).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishSettled publishes lines that moved to history. Nothing is sent for
// an empty batch.
func (p *Publisher) PublishSettled(ctx context.Context, sessionID string, lines []models.LineDocument) error {
	if len(lines) == 0 {
		return nil
	}
	ev := models.CaptionEvent{
		EventType: models.EventSettled,
		SessionID: sessionID,
		Principal: p.principal,
		Timestamp: p.now().UnixMilli(),
		Lines:     lines,
	}
	return p.publish(ctx, p.writerHistory, p.topicHistory, sessionID, ev)
}

// PublishSnapshot publishes the current live transcript.
func (p *Publisher) PublishSnapshot(ctx context.Context, sessionID string, doc models.TranscriptDocument) error {
	ev := models.CaptionEvent{
		EventType: models.EventSnapshot,
		SessionID: sessionID,
		Principal: p.principal,
		Timestamp: p.now().UnixMilli(),
		Snapshot:  &doc,
	}
	return p.publish(ctx, p.writerLive, p.topicLive, sessionID, ev)
}

// publish validates ev and writes it keyed by session to a specific writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, key string, ev models.CaptionEvent) error {
	start := time.Now()

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}
	if err := p.validator.ValidateJSON(payload); err != nil {
		log.Error().Err(err).Str("topic", topic).Str("eventType", ev.EventType).Msg("Event failed schema validation")
		p.metrics.RecordKafkaPublish(topic, ev.EventType, err, time.Since(start).Seconds())
		return fmt.Errorf("invalid %s event: %w", ev.EventType, err)
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, ev.EventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.EventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, ev.EventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, ev.EventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerLive != nil {
		if e := p.writerLive.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing live writer")
			err = e
		}
	}
	if p.writerHistory != nil {
		if e := p.writerHistory.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing history writer")
			err = e
		}
	}
	return err
}
