package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/runclub/clubsync/internal/models"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

func TestPublisherReportWritesKeyedEvent(t *testing.T) {
	producer := &stubProducer{}
	publisher := NewPublisher(producer, "activity_sync_events")

	finished := time.Date(2025, 10, 1, 12, 0, 5, 0, time.UTC)
	result := models.SyncResult{
		RunID:      "run-1",
		UserID:     "user-1",
		Trigger:    models.SyncTriggerScheduled,
		Outcome:    models.SyncOutcomeSuccess,
		Upserted:   12,
		Rejected:   3,
		StartedAt:  finished.Add(-5 * time.Second),
		FinishedAt: finished,
	}
	require.NoError(t, publisher.Report(context.Background(), result))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "activity_sync_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	msg := producer.writes[0].messages[0]
	require.Equal(t, []byte("user-1"), msg.Key)
	require.Equal(t, finished, msg.Time)
	require.Equal(t, "event_type", msg.Headers[0].Key)
	require.Equal(t, EventSyncCompleted, string(msg.Headers[0].Value))

	var event SyncCompleted
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	require.Equal(t, EventSyncCompleted, event.Type)
	require.Equal(t, "run-1", event.RunID)
	require.Equal(t, models.SyncOutcomeSuccess, event.Outcome)
	require.Equal(t, 12, event.Upserted)
	require.Empty(t, event.Error)
}

func TestPublisherReportCarriesFailure(t *testing.T) {
	producer := &stubProducer{}
	publisher := NewPublisher(producer, "topic")

	require.NoError(t, publisher.Report(context.Background(), models.SyncResult{
		RunID:   "run-2",
		UserID:  "user-2",
		Outcome: models.SyncOutcomeFailed,
		Error:   "fetch page 2: status 502",
	}))

	var event SyncCompleted
	require.NoError(t, json.Unmarshal(producer.writes[0].messages[0].Value, &event))
	require.Equal(t, models.SyncOutcomeFailed, event.Outcome)
	require.Equal(t, "fetch page 2: status 502", event.Error)
}

func TestPublisherReportWrapsWriteError(t *testing.T) {
	producer := &stubProducer{err: errors.New("kafka write failed")}
	publisher := NewPublisher(producer, "topic")

	err := publisher.Report(context.Background(), models.SyncResult{RunID: "run-3", UserID: "user-3"})
	require.ErrorContains(t, err, "publish sync event")
	require.ErrorIs(t, err, producer.err)
}

func TestKafkaProducerReusesWriterPerTopic(t *testing.T) {
	producer := NewKafkaProducer([]string{"localhost:9092"})

	first := producer.writerForTopic("a")
	require.Same(t, first, producer.writerForTopic("a"))
	require.NotSame(t, first, producer.writerForTopic("b"))

	require.NoError(t, producer.Close())
	require.Empty(t, producer.writers)
}
