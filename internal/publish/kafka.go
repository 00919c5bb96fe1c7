// Package publish forwards built feature vectors to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/buessow/glumagic/internal/config"
	"github.com/buessow/glumagic/internal/models"
)

// Publisher delivers feature vectors.
type Publisher interface {
	Publish(ctx context.Context, result models.VectorResult) error
	Close() error
}

// New returns a Kafka publisher when publication is enabled, otherwise a
// NoopPublisher.
func New(cfg config.KafkaConfig, logger *slog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return NoopPublisher{}, nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publication enabled without brokers")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewKafkaPublisher(w, logger), nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes every vector as a JSON message keyed by its run id.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafkaPublisher wraps a writer; *kafka.Writer satisfies it.
func NewKafkaPublisher(w messageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// Publish encodes result and writes it. Results without a run id get a fresh
// one so that messages are always keyed.
func (p *KafkaPublisher) Publish(ctx context.Context, result models.VectorResult) error {
	if result.RunID == "" {
		result.RunID = uuid.NewString()
	}
	payload, err := json.Marshal(vectorMessage(result))
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(result.RunID),
		Value: payload,
		Time:  result.At,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write vector %s: %w", result.RunID, err)
	}
	p.logger.Debug("vector published", slog.String("run_id", result.RunID), slog.Time("at", result.At))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type message struct {
	RunID       string     `json:"runId"`
	At          time.Time  `json:"at"`
	LastGlucose *float64   `json:"lastGlucose"`
	Columns     []string   `json:"columns"`
	Values      []*float64 `json:"values"`
	Anomalies   int        `json:"anomalies"`
}

// vectorMessage replaces non-finite values, which JSON cannot carry, with null.
func vectorMessage(r models.VectorResult) message {
	values := make([]*float64, len(r.Values))
	for i := range r.Values {
		values[i] = finite(r.Values[i])
	}
	return message{
		RunID:       r.RunID,
		At:          r.At,
		LastGlucose: finite(r.LastGlucose),
		Columns:     r.Columns,
		Values:      values,
		Anomalies:   r.Anomalies,
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NoopPublisher drops every vector.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.VectorResult) error { return nil }
func (NoopPublisher) Close() error                                       { return nil }
