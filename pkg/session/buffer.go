package session

import (
	"sync"

	"github.com/dukex/flowbot/pkg/models"
)

// MessageBuffer keeps the most recent messages of the current session. It is not durable.
type MessageBuffer struct {
	mu       sync.RWMutex
	capacity int
	records  []models.MessageRecord
}

func NewMessageBuffer(capacity int) *MessageBuffer {
	if capacity <= 0 {
		capacity = 200
	}

	return &MessageBuffer{capacity: capacity}
}

// Add appends record, evicting the oldest entry when full.
func (b *MessageBuffer) Add(record models.MessageRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == b.capacity {
		copy(b.records, b.records[1:])
		b.records = b.records[:len(b.records)-1]
	}

	b.records = append(b.records, record)
}

// List returns the buffered records, oldest first, optionally only those of chatID.
func (b *MessageBuffer) List(chatID string) []models.MessageRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.MessageRecord, 0, len(b.records))

	for _, r := range b.records {
		if chatID == "" || r.ChatID == chatID {
			out = append(out, r)
		}
	}

	return out
}

func (b *MessageBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.records)
}

func (b *MessageBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = nil
}
