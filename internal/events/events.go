package events

import (
	"context"
	"time"

	"meetingrelay/internal/domain"
)

const (
	TopicPayloadStored = "meetingrelay.payload.stored"
	TopicTaskSent      = "meetingrelay.task.sent"
)

type PayloadStored struct {
	PayloadID  string    `json:"payload_id"`
	ReceivedAt time.Time `json:"received_at"`
}

type TaskSent struct {
	Record domain.SentTaskRecord `json:"record"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
