package domain

import "context"

// Assessment pipeline topics. Requests fan in from the API, results fan out
// to whoever subscribes.
const (
	TopicAssessmentRequested = "procuresight.assessment.requested"
	TopicAssessmentCompleted = "procuresight.assessment.completed"
	TopicAssessmentFlagged   = "procuresight.assessment.flagged"
)

// AssessmentRequest asks a worker to assess one record. TraceID, when set,
// is stamped on the resulting assessment.
type AssessmentRequest struct {
	RecordID string `json:"recordId"`
	TraceID  string `json:"traceId,omitempty"`
}

// Message is the envelope carried by every bus implementation. Metadata
// holds propagated trace context.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// MessageHandler consumes one message. A returned error is logged by the bus
// and does not stop the subscription.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is a live handler registration.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBus moves assessment requests and results between the API and
// workers: in-process channels on the community tier, NATS on pro.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// EventBusConfig selects and tunes the bus.
type EventBusConfig struct {
	Type string // "channel" or "nats"

	// channel
	ChannelBufferSize int

	// nats
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int    // seconds
	NATSQueue         string // queue group shared by worker replicas
}
