// Package events announces finished activity syncs on Kafka so other services can
// recompute leaderboards without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/runclub/clubsync/internal/models"
)

// EventSyncCompleted is the type of the event published after every user run.
const EventSyncCompleted = "activity.sync_completed"

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// SyncCompleted is the event payload.
type SyncCompleted struct {
	Type       string             `json:"type"`
	RunID      string             `json:"run_id"`
	UserID     string             `json:"user_id"`
	Trigger    models.SyncTrigger `json:"trigger"`
	Outcome    models.SyncOutcome `json:"outcome"`
	Upserted   int                `json:"upserted"`
	Rejected   int                `json:"rejected"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Publisher reports sync results to a topic, keyed by user id so one user's events
// stay ordered within a partition.
type Publisher struct {
	producer messageWriter
	topic    string
}

// NewPublisher creates a Publisher writing to topic.
func NewPublisher(producer messageWriter, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// Report publishes result.
func (p *Publisher) Report(ctx context.Context, result models.SyncResult) error {
	payload, err := json.Marshal(SyncCompleted{
		Type:       EventSyncCompleted,
		RunID:      result.RunID,
		UserID:     result.UserID,
		Trigger:    result.Trigger,
		Outcome:    result.Outcome,
		Upserted:   result.Upserted,
		Rejected:   result.Rejected,
		Error:      result.Error,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(result.UserID),
		Value: payload,
		Time:  result.FinishedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventSyncCompleted)},
			{Key: "run_id", Value: []byte(result.RunID)},
		},
	}
	if err := p.producer.WriteMessages(ctx, p.topic, msg); err != nil {
		return fmt.Errorf("publish sync event: %w", err)
	}
	return nil
}
