package publish

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/buessow/glumagic/internal/config"
	"github.com/buessow/glumagic/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishEncodesVector(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, nil)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), models.VectorResult{
		RunID:       "run-1",
		At:          at,
		LastGlucose: 130,
		Columns:     []string{"gl_05", "hr_05"},
		Values:      []float64{130, math.NaN()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.messages))
	}
	msg := w.messages[0]
	if string(msg.Key) != "run-1" {
		t.Fatalf("expected run id key, got %s", msg.Key)
	}
	var decoded struct {
		RunID  string     `json:"runId"`
		Values []*float64 `json:"values"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if len(decoded.Values) != 2 || decoded.Values[0] == nil || *decoded.Values[0] != 130 || decoded.Values[1] != nil {
		t.Fatalf("expected NaN encoded as null, got %s", msg.Value)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestPublishAssignsRunIDAndWrapsErrors(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, nil)
	if err := p.Publish(context.Background(), models.VectorResult{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.messages[0].Key) != 36 {
		t.Fatalf("expected generated uuid key, got %q", w.messages[0].Key)
	}

	failure := errors.New("broker down")
	p = NewKafkaPublisher(&fakeWriter{err: failure}, nil)
	if err := p.Publish(context.Background(), models.VectorResult{RunID: "x"}); !errors.Is(err, failure) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestNewSelectsPublisher(t *testing.T) {
	p, err := New(config.KafkaConfig{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(NoopPublisher); !ok {
		t.Fatalf("expected noop publisher, got %T", p)
	}
	if _, err := New(config.KafkaConfig{Enabled: true, Topic: "t"}, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
	p, err = New(config.KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*KafkaPublisher); !ok {
		t.Fatalf("expected kafka publisher, got %T", p)
	}
}
