package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// ErrNotReplayable — сообщение DLQ не содержит исходного события.
var ErrNotReplayable = errors.New("dlq message is not replayable")

// Replay — исходное сообщение, восстановленное из DLQ.
type Replay struct {
	Topic string
	Key   string
	Value []byte
}

// outboxDeadLetter — payload, который outbox worker кладёт в конверт при отправке в DLQ.
type outboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// ReplayFromDLQ восстанавливает исходное сообщение из записи DLQ.
// Понимает оба формата: DeadLetter от consumer и outbox-конверт от outbox worker.
// Outbox-события возвращаются в orderTopic.
func ReplayFromDLQ(message *sarama.ConsumerMessage, orderTopic string) (Replay, error) {
	if letter, err := ParseDeadLetter(message); err == nil && letter.OriginalValue != "" {
		topic := strings.TrimSpace(letter.OriginalTopic)
		if topic == "" {
			topic = orderTopic
		}
		return Replay{Topic: topic, Key: letter.OriginalKey, Value: []byte(letter.OriginalValue)}, nil
	}

	var envelope OutboxEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return Replay{}, ErrNotReplayable
	}

	var letter outboxDeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return Replay{}, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(letter.Payload) == 0 {
		return Replay{}, fmt.Errorf("outbox dead letter %q: %w", envelope.ID, ErrNotReplayable)
	}

	replay := OutboxEnvelope{
		ID:            firstNonEmpty(letter.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(letter.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(letter.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(letter.EventType, envelope.EventType),
		Payload:       letter.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	value, err := json.Marshal(replay)
	if err != nil {
		return Replay{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := replay.AggregateID
	if key == "" {
		key = replay.ID
	}
	return Replay{Topic: orderTopic, Key: key, Value: value}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
