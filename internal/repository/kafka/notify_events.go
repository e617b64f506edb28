package kafka

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
)

const (
	// HeaderAttempts carries the delivery-attempt count across requeues.
	HeaderAttempts = "x-delivery-attempts"
	// HeaderDeadReason records why a message was dead-lettered.
	HeaderDeadReason = "x-dead-letter-reason"
)

// NotifyEventsKafka routes failed notification events: back onto the send
// topic while the retry budget lasts, then onto the dead-letter topic.
type NotifyEventsKafka struct {
	requeue *Producer
	dead    *Producer
}

func NewNotifyEventsKafka(requeue, dead *Producer) *NotifyEventsKafka {
	return &NotifyEventsKafka{requeue: requeue, dead: dead}
}

// Requeue re-produces the original bytes with the attempt counter bumped.
func (e *NotifyEventsKafka) Requeue(ctx context.Context, key, value []byte, attempt int) error {
	return e.requeue.PublishRaw(ctx, key, value, kafka.Header{
		Key:   HeaderAttempts,
		Value: []byte(strconv.Itoa(attempt)),
	})
}

// DeadLetter parks the original bytes on the dead-letter topic with the
// terminal error attached.
func (e *NotifyEventsKafka) DeadLetter(ctx context.Context, key, value []byte, attempt int, reason string) error {
	return e.dead.PublishRaw(ctx, key, value,
		kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempt))},
		kafka.Header{Key: HeaderDeadReason, Value: []byte(reason)},
	)
}

// Attempts reads the attempt counter from message headers; first delivery is 1.
func Attempts(hs []kafka.Header) int {
	v := HeaderValue(hs, HeaderAttempts)
	if v == "" {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
