package domain

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// Message is the value exchanged by the secure endpoints.
type Message struct {
	Content   string    `json:"content" yaml:"content"`
	Sender    string    `json:"sender" yaml:"sender"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(content, sender string) Message {
	return Message{Content: content, Sender: sender, Timestamp: time.Now()}
}

// NewMessageAt creates a message with an explicit timestamp. A zero timestamp is
// replaced by the current time.
func NewMessageAt(content, sender string, ts time.Time) Message {
	if ts.IsZero() {
		ts = time.Now()
	}
	return Message{Content: content, Sender: sender, Timestamp: ts}
}

// Equal compares all three fields. Timestamps are compared as instants.
func (m Message) Equal(other Message) bool {
	return m.Content == other.Content &&
		m.Sender == other.Sender &&
		m.Timestamp.Equal(other.Timestamp)
}

func (m Message) String() string {
	return fmt.Sprintf("Message{content='%s', sender='%s', timestamp=%s}",
		m.Content, m.Sender, m.Timestamp.Format(time.RFC3339Nano))
}

// MarshalJSON writes the timestamp in RFC 3339 with nanoseconds. Content or sender
// that is not valid UTF-8 is refused rather than rewritten.
func (m Message) MarshalJSON() ([]byte, error) {
	if !utf8.ValidString(m.Content) {
		return nil, fmt.Errorf("message: content is not valid UTF-8")
	}
	if !utf8.ValidString(m.Sender) {
		return nil, fmt.Errorf("message: sender is not valid UTF-8")
	}
	return json.Marshal(struct {
		Content   string `json:"content"`
		Sender    string `json:"sender"`
		Timestamp string `json:"timestamp"`
	}{
		Content:   m.Content,
		Sender:    m.Sender,
		Timestamp: formatTimestamp(m.Timestamp),
	})
}

// UnmarshalJSON requires a JSON object carrying string content and sender fields.
// A missing or null timestamp is replaced by the decode time.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire struct {
		Content   *string `json:"content"`
		Sender    *string `json:"sender"`
		Timestamp *string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	if wire.Content == nil {
		return fmt.Errorf("message: missing field %q", "content")
	}

	var sender string
	if wire.Sender != nil {
		sender = *wire.Sender
	}

	var ts time.Time
	if wire.Timestamp != nil && *wire.Timestamp != "" {
		parsed, err := parseTimestamp(*wire.Timestamp)
		if err != nil {
			return fmt.Errorf("message: %w", err)
		}
		ts = parsed
	}

	*m = NewMessageAt(*wire.Content, sender, ts)
	return nil
}
