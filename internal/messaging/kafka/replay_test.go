package kafka

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"
)

func TestReplayFromDLQ_ConsumerDeadLetter(t *testing.T) {
	value, err := json.Marshal(DeadLetter{
		OriginalTopic: TopicPaymentEvents,
		OriginalKey:   "order-1",
		OriginalValue: `{"event_id":"e-1","event_type":"payment.captured","order_id":"order-1"}`,
		ErrorMessage:  "boom",
		FailedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	replay, err := ReplayFromDLQ(&sarama.ConsumerMessage{Value: value}, TopicOrderEvents)
	require.NoError(t, err)
	require.Equal(t, TopicPaymentEvents, replay.Topic)
	require.Equal(t, "order-1", replay.Key)
	require.JSONEq(t, `{"event_id":"e-1","event_type":"payment.captured","order_id":"order-1"}`, string(replay.Value))
}

func TestReplayFromDLQ_OutboxDeadLetter(t *testing.T) {
	inner, err := json.Marshal(map[string]any{
		"outbox_id":      "ob-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-7",
		"event_type":     "OrderPaid",
		"payload":        json.RawMessage(`{"order_id":"order-7"}`),
		"publish_error":  "broker down",
	})
	require.NoError(t, err)
	value, err := json.Marshal(OutboxEnvelope{ID: "ob-1", AggregateID: "order-7", EventType: "OrderPaid", Payload: inner})
	require.NoError(t, err)

	replay, err := ReplayFromDLQ(&sarama.ConsumerMessage{Value: value}, TopicOrderEvents)
	require.NoError(t, err)
	require.Equal(t, TopicOrderEvents, replay.Topic)
	require.Equal(t, "order-7", replay.Key)

	var event OutboxEnvelope
	require.NoError(t, json.Unmarshal(replay.Value, &event))
	require.Equal(t, "ob-1", event.ID)
	require.Equal(t, "order", event.AggregateType)
	require.JSONEq(t, `{"order_id":"order-7"}`, string(event.Payload))
}

func TestReplayFromDLQ_NotReplayable(t *testing.T) {
	_, err := ReplayFromDLQ(&sarama.ConsumerMessage{Value: []byte("not json")}, TopicOrderEvents)
	require.True(t, errors.Is(err, ErrNotReplayable))

	value, err := json.Marshal(OutboxEnvelope{ID: "ob-2", Payload: json.RawMessage(`{"outbox_id":"ob-2"}`)})
	require.NoError(t, err)
	_, err = ReplayFromDLQ(&sarama.ConsumerMessage{Value: value}, TopicOrderEvents)
	require.ErrorIs(t, err, ErrNotReplayable)

	value, err = json.Marshal(OutboxEnvelope{ID: "ob-3", Payload: json.RawMessage(`[1,2]`)})
	require.NoError(t, err)
	_, err = ReplayFromDLQ(&sarama.ConsumerMessage{Value: value}, TopicOrderEvents)
	require.ErrorContains(t, err, "decode outbox dead letter")
}
