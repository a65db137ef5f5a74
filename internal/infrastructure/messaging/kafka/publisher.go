package kafka

import (
	"context"

	"github.com/turtacn/ChemPredict/internal/domain/history"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
)

// EventPublisher maps domain records onto the prefixed event topics.
type EventPublisher struct {
	producer *Producer
	prefix   string
	source   string
	logger   logging.Logger
}

// NewEventPublisher returns a publisher writing through p.  An empty prefix
// selects DefaultTopicPrefix.
func NewEventPublisher(p *Producer, prefix, source string, log logging.Logger) *EventPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &EventPublisher{producer: p, prefix: prefix, source: source, logger: log}
}

// PredictionCompleted publishes r keyed by its mechanism.
func (e *EventPublisher) PredictionCompleted(ctx context.Context, r *history.Record) error {
	payload := PredictionCompletedPayload{
		PredictionID: r.ID.String(),
		Input: map[string]string{
			reaction.ColSubstrateDegree: r.SubstrateDegree,
			reaction.ColLeavingGroup:    r.LeavingGroup,
			reaction.ColNucleophile:     r.Nucleophile,
			reaction.ColSolventType:     r.SolventType,
			reaction.ColStericHindrance: r.StericHindrance,
		},
		Temperature:   r.Temperature,
		Mechanism:     r.Mechanism,
		Probabilities: r.Probabilities,
		ModelVersion:  r.ModelVersion,
		Backend:       r.Backend,
		CacheHit:      r.CacheHit,
		LatencyMs:     float64(r.Latency.Microseconds()) / 1000,
		CompletedAt:   r.CreatedAt,
	}
	return e.publish(ctx, TopicPredictionCompleted, []byte(r.Mechanism), payload)
}

// ModelTrained publishes run keyed by model id.
func (e *EventPublisher) ModelTrained(ctx context.Context, run *history.Run) error {
	payload := ModelTrainedPayload{
		ModelID:   run.ModelID,
		Version:   run.Version,
		Rows:      run.Rows,
		TrainRows: run.TrainRows,
		TestRows:  run.TestRows,
		Accuracy:  run.Accuracy,
		TrainedAt: run.CreatedAt,
	}
	return e.publish(ctx, TopicModelTrained, []byte(run.ModelID), payload)
}

func (e *EventPublisher) publish(ctx context.Context, event string, key []byte, payload interface{}) error {
	env, err := NewEventEnvelope(event, e.source, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(TopicName(e.prefix, event), key)
	if err != nil {
		return err
	}
	if err := e.producer.Publish(ctx, msg); err != nil {
		return err
	}
	e.logger.Debug("event published", logging.String("event", event), logging.String("event_id", env.EventID))
	return nil
}

// Close closes the producer.
func (e *EventPublisher) Close() error {
	return e.producer.Close()
}
