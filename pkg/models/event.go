package models

import "time"

// Direction tells whether a chat message came from the customer or was sent by us.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// MessageType is the content type of a chat message.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeImage       MessageType = "image"
	MessageTypeAudio       MessageType = "audio"
	MessageTypeVideo       MessageType = "video"
	MessageTypeDocument    MessageType = "document"
	MessageTypeInteractive MessageType = "interactive"
)

// EventBody carries the textual parts of a message. Nil means the field was absent.
type EventBody struct {
	Text    *string `json:"text,omitempty"`
	Caption *string `json:"caption,omitempty"`
}

// InboundEvent is a chat message relayed by the messaging gateway. Immutable once received.
type InboundEvent struct {
	ID        string      `json:"id,omitempty"`
	ChatID    string      `json:"chatId"    validate:"required"`
	Direction Direction   `json:"direction" validate:"required,oneof=incoming outgoing"`
	Type      MessageType `json:"type"`
	Body      EventBody   `json:"body"`
	Timestamp time.Time   `json:"timestamp"`

	// Epoch identifies the connection that received the event. Zero when unknown.
	Epoch uint64 `json:"-"`
}

// Text returns the body text, falling back to the caption, then to "".
func (e InboundEvent) Text() string {
	if e.Body.Text != nil {
		return *e.Body.Text
	}

	if e.Body.Caption != nil {
		return *e.Body.Caption
	}

	return ""
}

// IsIncoming reports whether the event was sent by the customer.
func (e InboundEvent) IsIncoming() bool {
	return e.Direction == DirectionIncoming
}

// OutboundBody is the content of a reply.
type OutboundBody struct {
	Text     string   `json:"text,omitempty"`
	MediaURL string   `json:"mediaUrl,omitempty"`
	Caption  string   `json:"caption,omitempty"`
	FileName string   `json:"fileName,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`

	ButtonText string        `json:"buttonText,omitempty"`
	Sections   []ListSection `json:"sections,omitempty"`
}

// OutboundMessage is a reply addressed to a chat.
type OutboundMessage struct {
	Type MessageType  `json:"type"`
	Body OutboundBody `json:"body"`
}

// NewTextMessage builds a plain text reply.
func NewTextMessage(text string) OutboundMessage {
	return OutboundMessage{Type: MessageTypeText, Body: OutboundBody{Text: text}}
}

// MessageRecord is one entry of the session's message buffer.
type MessageRecord struct {
	ChatID     string      `json:"chatId"`
	Direction  Direction   `json:"direction"`
	Type       MessageType `json:"type"`
	Text       string      `json:"text"`
	FlowID     string      `json:"flowId,omitempty"`
	TemplateID string      `json:"templateId,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
