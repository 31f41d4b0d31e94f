package models

import "time"

// MessageKind is the content type of a message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindAudio MessageKind = "audio"
)

// Message represents a single message in a 1:1 conversation.
// The durable log is authoritative; the broker cache holds a serialized
// mirror of the most recent entries per conversation.
type Message struct {
	ID             string      `json:"id"` // ULID, sortable by creation time
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	RecipientID    string      `json:"recipient_id"`
	Body           string      `json:"body,omitempty"`
	MediaRef       string      `json:"media_ref,omitempty"`
	Kind           MessageKind `json:"kind"`
	SentAt         time.Time   `json:"sent_at"`
	ReadAt         *time.Time  `json:"read_at,omitempty"`
	Deleted        bool        `json:"deleted"`
	DeletedAt      *time.Time  `json:"deleted_at,omitempty"`
	DeletedBy      string      `json:"deleted_by,omitempty"`
}

// Read reports whether the message has been read by its recipient.
func (m *Message) Read() bool {
	return m.ReadAt != nil
}

// ParticipantIDs returns the two conversation participants.
func (m *Message) ParticipantIDs() []string {
	return []string{m.SenderID, m.RecipientID}
}

// IsParticipant reports whether userID is the sender or the recipient.
func (m *Message) IsParticipant(userID string) bool {
	return userID == m.SenderID || userID == m.RecipientID
}
