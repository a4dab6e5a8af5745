package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"live-caption-service/internal/models"
	"live-caption-service/internal/observability/logging"
	"live-caption-service/internal/schema"
)

// Decode parses and validates one caption event payload.
func Decode(validator *schema.Validator, payload []byte) (models.CaptionEvent, error) {
	var ev models.CaptionEvent
	if err := validator.ValidateJSON(payload); err != nil {
		return ev, err
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("decode caption event: %w", err)
	}
	return ev, nil
}

// ConsumerConfig selects the topic to follow.
type ConsumerConfig struct {
	Brokers  []string
	Topic    string
	Lookback time.Duration
}

// Consume reads caption events from one topic and hands each valid one to
// deliver until ctx is done.
func Consume(ctx context.Context, cfg ConsumerConfig, deliver func(models.CaptionEvent)) error {
	validator, err := schema.New()
	if err != nil {
		return err
	}
	logger := logging.WithComponent("viewer-consumer").With().Str("topic", cfg.Topic).Logger()

	// Use partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if cfg.Lookback > 0 {
		if err := reader.SetOffsetAt(ctx, time.Now().Add(-cfg.Lookback)); err != nil {
			logger.Warn().Err(err).Msg("Failed to seek, reading from the start")
		}
	}

	logger.Info().Dur("lookback", cfg.Lookback).Msg("Consuming caption events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		ev, err := Decode(validator, msg.Value)
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping invalid caption event")
			continue
		}
		logger.Debug().Str("eventType", ev.EventType).Str("sessionId", ev.SessionID).Msg("Received caption event")
		deliver(ev)
	}
}
