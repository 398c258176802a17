package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeKind names the mutation that produced a message.
type ChangeKind string

const (
	ChangeEqualAdded      ChangeKind = "equal_added"
	ChangeItemizedAdded   ChangeKind = "itemized_added"
	ChangeEqualDeleted    ChangeKind = "equal_deleted"
	ChangeItemizedDeleted ChangeKind = "itemized_deleted"
	ChangeSharersChanged  ChangeKind = "sharers_changed"
)

func (k ChangeKind) valid() bool {
	switch k {
	case ChangeEqualAdded, ChangeItemizedAdded, ChangeEqualDeleted, ChangeItemizedDeleted, ChangeSharersChanged:
		return true
	}
	return false
}

// EntriesChangedMessage tells consumers that the entry lists moved to a new
// revision. It carries no entry data; consumers read a fresh snapshot.
type EntriesChangedMessage struct {
	Kind      ChangeKind `json:"kind"`
	EntryID   string     `json:"entry_id"`
	Revision  int64      `json:"revision"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewEntriesChangedMessage(kind ChangeKind, entryID string, revision int64) *EntriesChangedMessage {
	return &EntriesChangedMessage{
		Kind:      kind,
		EntryID:   entryID,
		Revision:  revision,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EntriesChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntriesChangedMessageFromJSON decodes a message and rejects unknown kinds.
func EntriesChangedMessageFromJSON(data []byte) (*EntriesChangedMessage, error) {
	var msg EntriesChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.valid() {
		return nil, fmt.Errorf("unknown change kind %q", msg.Kind)
	}
	return &msg, nil
}
