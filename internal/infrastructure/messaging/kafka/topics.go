package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Event names.  Topics are the names behind a deployment prefix.
const (
	TopicPredictionCompleted = "prediction.completed"
	TopicModelTrained        = "model.trained"

	DefaultTopicPrefix = "chempredict."
	SchemaVersion      = "1"
)

// TopicName joins prefix and name.
func TopicName(prefix, name string) string {
	return prefix + name
}

// EventEnvelope wraps every payload on the wire.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PredictionCompletedPayload is published after every served prediction.
type PredictionCompletedPayload struct {
	PredictionID  string                         `json:"prediction_id"`
	Input         map[string]string              `json:"input"`
	Temperature   float64                        `json:"temperature"`
	Mechanism     reaction.Mechanism             `json:"mechanism"`
	Probabilities map[reaction.Mechanism]float64 `json:"probabilities"`
	ModelVersion  string                         `json:"model_version"`
	Backend       string                         `json:"backend"`
	CacheHit      bool                           `json:"cache_hit"`
	LatencyMs     float64                        `json:"latency_ms"`
	CompletedAt   time.Time                      `json:"completed_at"`
}

// ModelTrainedPayload is published after a new artifact is saved.
type ModelTrainedPayload struct {
	ModelID   string    `json:"model_id"`
	Version   string    `json:"version"`
	Rows      int       `json:"rows"`
	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
	Accuracy  float64   `json:"accuracy"`
	TrainedAt time.Time `json:"trained_at"`
}

// NewEventEnvelope marshals payload into a fresh envelope.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       raw,
	}, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode event payload").WithDetail(e.EventType)
	}
	return nil
}

// ToMessage renders the envelope for topic.
func (e *EventEnvelope) ToMessage(topic string, key []byte) (kafka.Message, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode event")
	}
	return kafka.Message{
		Topic: topic,
		Key:   key,
		Value: raw,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "schema_version", Value: []byte(e.SchemaVersion)},
		},
	}, nil
}

// DecodeEnvelope parses a consumed message.
func DecodeEnvelope(m kafka.Message) (*EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode event").WithDetail(m.Topic)
	}
	if env.EventType == "" {
		return nil, errors.New(errors.ErrCodeSerialization, "event without type").WithDetail(m.Topic)
	}
	return &env, nil
}
