package model

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantKind distinguishes human actors from AI agents.
type ParticipantKind string

const (
	ParticipantKindHuman ParticipantKind = "human"
	ParticipantKindAI    ParticipantKind = "ai"
)

// Valid reports whether k is a known participant kind.
func (k ParticipantKind) Valid() bool {
	switch k {
	case ParticipantKindHuman, ParticipantKindAI:
		return true
	default:
		return false
	}
}

// Participant is a human or AI actor identified externally by a unique address.
type Participant struct {
	ID          uuid.UUID       `json:"id"                    gorm:"primaryKey;type:uuid"`
	Address     string          `json:"address"               gorm:"not null;uniqueIndex"`
	DisplayName *string         `json:"displayName,omitempty"`
	Kind        ParticipantKind `json:"kind"                  gorm:"not null"`
	Description *string         `json:"description,omitempty"`
}

func (Participant) TableName() string { return "participants" }

// ConversationParticipant records the first observed participation of a
// participant in a conversation. At most one exists per pair.
type ConversationParticipant struct {
	ConversationID uuid.UUID `json:"-"             gorm:"primaryKey;type:uuid"`
	ParticipantID  uuid.UUID `json:"participantId" gorm:"primaryKey;type:uuid"`
	JoinedAt       time.Time `json:"joinedAt"      gorm:"not null"`
}

func (ConversationParticipant) TableName() string { return "conversation_participants" }

// Conversation is a thread of messages identified externally by ExternalID.
type Conversation struct {
	ID           uuid.UUID                 `json:"id"                gorm:"primaryKey;type:uuid"`
	ExternalID   string                    `json:"externalId"        gorm:"not null;uniqueIndex"`
	Topic        *string                   `json:"topic,omitempty"`
	StartedAt    time.Time                 `json:"startedAt"         gorm:"not null"`
	Participants []ConversationParticipant `json:"participants"      gorm:"foreignKey:ConversationID"`
	Summary      *string                   `json:"summary,omitempty"`
	Context      *string                   `json:"context,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

// ParticipantIDs returns member ids in join order.
func (c *Conversation) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Participants))
	for i, p := range c.Participants {
		ids[i] = p.ParticipantID
	}
	return ids
}

// Message is an immutable record of something a participant said. Only
// Summary and Context may change after insertion.
type Message struct {
	ID             uuid.UUID `json:"id"                   gorm:"primaryKey;type:uuid"`
	ConversationID uuid.UUID `json:"conversationId"       gorm:"not null;type:uuid;index:idx_messages_conversation_sent_at,priority:1"`
	SenderID       uuid.UUID `json:"senderId"             gorm:"not null;type:uuid"`
	Channel        string    `json:"channel"              gorm:"not null"`
	ExternalID     *string   `json:"externalId,omitempty"`
	SentAt         time.Time `json:"sentAt"               gorm:"not null;index:idx_messages_conversation_sent_at,priority:2"`
	Content        string    `json:"content"              gorm:"type:text;not null"`
	Summary        *string   `json:"summary,omitempty"`
	Context        *string   `json:"context,omitempty"`
	// CreatedAt is the server insertion time, used to order messages that
	// share a SentAt value.
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
}

func (Message) TableName() string { return "messages" }

// MessageSummary annotates a subset of the messages of one conversation.
// FromDate and ToDate span the SentAt values of the covered messages.
type MessageSummary struct {
	ID             uuid.UUID   `json:"id"                gorm:"primaryKey;type:uuid"`
	ConversationID uuid.UUID   `json:"conversationId"    gorm:"not null;type:uuid;index:idx_message_summaries_conversation_from,priority:1"`
	MessageIDs     []uuid.UUID `json:"messageIds"        gorm:"type:text;serializer:json;not null"`
	Summary        string      `json:"summary"           gorm:"type:text;not null"`
	Context        *string     `json:"context,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"         gorm:"not null"`
	FromDate       time.Time   `json:"fromDate"          gorm:"not null;index:idx_message_summaries_conversation_from,priority:2"`
	ToDate         time.Time   `json:"toDate"            gorm:"not null"`
}

func (MessageSummary) TableName() string { return "message_summaries" }

// FullConversation is the read-time assembly of a conversation with its
// members and ordered message history.
type FullConversation struct {
	Conversation Conversation  `json:"conversation"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
}

// MetadataUpdate carries the mutable annotation fields of conversations and
// messages. Nil fields are left unchanged.
type MetadataUpdate struct {
	Summary *string `json:"summary,omitempty"`
	Context *string `json:"context,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u MetadataUpdate) IsEmpty() bool {
	return u.Summary == nil && u.Context == nil
}
