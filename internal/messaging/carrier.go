package messaging

import (
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

// HeaderEventType names the event so consumers can route without decoding
// the payload.
const HeaderEventType = "event_type"

var _ propagation.TextMapCarrier = (*MessageCarrier)(nil)

// MessageCarrier exposes kafka headers to the otel propagator and to
// event routing.
type MessageCarrier struct {
	msg *kafka.Message
}

func NewMessageCarrier(msg *kafka.Message) *MessageCarrier {
	return &MessageCarrier{msg: msg}
}

// newEventMessage builds a keyed message tagged with its event type.
func newEventMessage(key, eventType string, value []byte) kafka.Message {
	msg := kafka.Message{Key: []byte(key), Value: value}
	if eventType != "" {
		NewMessageCarrier(&msg).Set(HeaderEventType, eventType)
	}
	return msg
}

func (c *MessageCarrier) EventType() string {
	return c.Get(HeaderEventType)
}

// Get returns the last value set for key; kafka allows repeated headers.
func (c *MessageCarrier) Get(key string) string {
	for i := len(c.msg.Headers) - 1; i >= 0; i-- {
		if c.msg.Headers[i].Key == key {
			return string(c.msg.Headers[i].Value)
		}
	}
	return ""
}

func (c *MessageCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *MessageCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	seen := make(map[string]bool, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		if !seen[h.Key] {
			seen[h.Key] = true
			keys = append(keys, h.Key)
		}
	}
	return keys
}
