// Package events defines the engine events published while messages are matched and answered.
package events

import (
	"time"

	"github.com/dukex/flowbot/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every engine event.
const Topic = "flowbot.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InboundReceivedEvent     EventType = "inbound.received"
	ReplySentEvent           EventType = "reply.sent"
	ReplyFailedEvent         EventType = "reply.failed"
	RulesReloadedEvent       EventType = "rules.reloaded"
	SessionStateChangedEvent EventType = "session.state_changed"
)

// EventTypes lists every engine event type.
var EventTypes = []EventType{
	InboundReceivedEvent,
	ReplySentEvent,
	ReplyFailedEvent,
	RulesReloadedEvent,
	SessionStateChangedEvent,
}

type BaseEvent struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	ChatID    string            `json:"chat_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a new event of type t for chatID.
func NewBaseEvent(t EventType, chatID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		ChatID:    chatID,
	}
}

type InboundReceived struct {
	BaseEvent

	Direction   models.Direction   `json:"direction"`
	MessageType models.MessageType `json:"message_type"`
	Text        string             `json:"text,omitempty"`
}

func (e InboundReceived) GetType() EventType {
	return InboundReceivedEvent
}

type ReplySent struct {
	BaseEvent

	FlowID      string             `json:"flow_id,omitempty"`
	TemplateID  string             `json:"template_id,omitempty"`
	MessageType models.MessageType `json:"message_type"`
	Duration    time.Duration      `json:"duration"`
}

func (e ReplySent) GetType() EventType {
	return ReplySentEvent
}

type ReplyFailed struct {
	BaseEvent

	FlowID     string `json:"flow_id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Error      string `json:"error"`
}

func (e ReplyFailed) GetType() EventType {
	return ReplyFailedEvent
}

type RulesReloaded struct {
	BaseEvent

	Flows      int    `json:"flows"`
	Templates  int    `json:"templates"`
	Generation uint64 `json:"generation"`
}

func (e RulesReloaded) GetType() EventType {
	return RulesReloadedEvent
}

type SessionStateChanged struct {
	BaseEvent

	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

func (e SessionStateChanged) GetType() EventType {
	return SessionStateChangedEvent
}
