package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/unimsg/internal/model"
	"github.com/google/uuid"
)

// ParticipantUpsert is the input of an upsert-by-address. ID and Address are
// only written when the participant is created; display name and description
// are written on every call. An empty Kind leaves an existing participant's
// kind alone and creates new participants as human.
type ParticipantUpsert struct {
	ID          uuid.UUID
	Address     string
	DisplayName *string
	Kind        model.ParticipantKind
	Description *string
}

// ConversationUpsert is the input of an upsert-by-external-id. Every field is
// only written when the conversation is created.
type ConversationUpsert struct {
	ID         uuid.UUID
	ExternalID string
	Topic      *string
	StartedAt  time.Time
}

// MessageStore is the document-store contract consumed by the aggregator.
// Implementations must provide an atomic find-or-create for the two upserts
// and an atomic conditional append for AddConversationParticipant; nothing
// else is expected to be atomic.
type MessageStore interface {
	// Participants
	UpsertParticipant(ctx context.Context, p ParticipantUpsert) (*model.Participant, error)
	GetParticipant(ctx context.Context, id uuid.UUID) (*model.Participant, error)
	FindParticipantByAddress(ctx context.Context, address string) (*model.Participant, error)
	ListParticipants(ctx context.Context) ([]model.Participant, error)
	// GetParticipantsByIDs returns the participants that resolve; unknown ids are skipped.
	GetParticipantsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Participant, error)

	// Conversations
	UpsertConversation(ctx context.Context, c ConversationUpsert) (*model.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	FindConversationByExternalID(ctx context.Context, externalID string) (*model.Conversation, error)
	// ListConversations returns all conversations, most recently started first.
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	UpdateConversationMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Conversation, error)
	// AddConversationParticipant appends a membership record unless one already
	// exists for participantID. It reports whether a record was appended; a
	// missing conversation is not an error.
	AddConversationParticipant(ctx context.Context, conversationID uuid.UUID, participantID uuid.UUID, joinedAt time.Time) (bool, error)

	// Messages
	InsertMessage(ctx context.Context, m model.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error)
	// ListMessages returns all messages, most recently sent first.
	ListMessages(ctx context.Context) ([]model.Message, error)
	// ListConversationMessages returns the messages of one conversation ordered
	// by sent_at ascending, ties by insertion time.
	ListConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error)
	// GetMessagesByIDs returns the messages that resolve; unknown ids are skipped.
	GetMessagesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Message, error)
	UpdateMessageMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Message, error)

	// Message summaries
	InsertMessageSummary(ctx context.Context, s model.MessageSummary) error
	// ListMessageSummaries returns the summaries of one conversation ordered by from_date ascending.
	ListMessageSummaries(ctx context.Context, conversationID uuid.UUID) ([]model.MessageSummary, error)

	// Close releases the underlying connection pool.
	Close(ctx context.Context) error
}

// Loader creates a MessageStore from config.
type Loader func(ctx context.Context) (MessageStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
