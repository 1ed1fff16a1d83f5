package aggregator

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/unimsg/internal/model"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/chirino/unimsg/internal/telemetry"
	"github.com/google/uuid"
)

// MessageInput is a message to append to an existing conversation.
type MessageInput struct {
	ConversationID uuid.UUID `json:"conversationId"`
	SenderID       uuid.UUID `json:"senderId"`
	Channel        string    `json:"channel"`
	ExternalID     *string   `json:"externalId,omitempty"`
	SentAt         time.Time `json:"sentAt"`
	Content        string    `json:"content"`
	Summary        *string   `json:"summary,omitempty"`
	Context        *string   `json:"context,omitempty"`
}

// IngestInput is a message whose conversation and sender are given by
// natural key rather than internal id.
type IngestInput struct {
	Conversation ConversationInput `json:"conversation"`
	Sender       ParticipantInput  `json:"sender"`
	Channel      string            `json:"channel"`
	ExternalID   *string           `json:"externalId,omitempty"`
	SentAt       time.Time         `json:"sentAt"`
	Content      string            `json:"content"`
	Summary      *string           `json:"summary,omitempty"`
	Context      *string           `json:"context,omitempty"`
}

// IngestResult holds the records touched by Ingest.
type IngestResult struct {
	Participant  model.Participant  `json:"participant"`
	Conversation model.Conversation `json:"conversation"`
	Message      model.Message      `json:"message"`
}

func validateMessageFields(channel string, sentAt time.Time) error {
	if strings.TrimSpace(channel) == "" {
		return &registrystore.ValidationError{Field: "channel", Message: "must not be empty"}
	}
	if sentAt.IsZero() {
		return &registrystore.ValidationError{Field: "sentAt", Message: "is required"}
	}
	return nil
}

// RecordMessage appends an immutable message to a conversation. The
// conversation and the sender must exist, checked in that order. The sender
// is linked as a member before the message is inserted; the link is not
// undone if the insert fails. ExternalID is informational and not used to
// detect duplicates.
func (s *Service) RecordMessage(ctx context.Context, in MessageInput) (*model.Message, error) {
	if err := validateMessageFields(in.Channel, in.SentAt); err != nil {
		return nil, err
	}
	if _, err := s.store.GetConversation(ctx, in.ConversationID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetParticipant(ctx, in.SenderID); err != nil {
		return nil, err
	}

	joined, err := s.EnsureMember(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if joined {
		telemetry.CountJoin()
		log.Debug("Participant joined conversation", "conversation", in.ConversationID, "participant", in.SenderID)
	}

	msg := model.Message{
		ID:             s.newID(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Channel:        in.Channel,
		ExternalID:     in.ExternalID,
		SentAt:         NormalizeTime(in.SentAt),
		Content:        in.Content,
		Summary:        in.Summary,
		Context:        in.Context,
		CreatedAt:      s.timestamp(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Ingest resolves the sender and the conversation by natural key, creating
// either on first sight, and records the message. An existing conversation
// keeps its topic.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if err := validateMessageFields(in.Channel, in.SentAt); err != nil {
		return nil, err
	}
	if err := in.Sender.validate(); err != nil {
		return nil, err
	}
	if err := in.Conversation.validate(); err != nil {
		return nil, err
	}
	sender, err := s.ResolveParticipant(ctx, in.Sender)
	if err != nil {
		return nil, err
	}
	conv, err := s.ResolveConversation(ctx, in.Conversation)
	if err != nil {
		return nil, err
	}
	msg, err := s.RecordMessage(ctx, MessageInput{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		Channel:        in.Channel,
		ExternalID:     in.ExternalID,
		SentAt:         in.SentAt,
		Content:        in.Content,
		Summary:        in.Summary,
		Context:        in.Context,
	})
	if err != nil {
		return nil, err
	}

	// Re-read so the returned conversation reflects the membership just added.
	current, err := s.store.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Participant: *sender, Conversation: *current, Message: *msg}, nil
}
