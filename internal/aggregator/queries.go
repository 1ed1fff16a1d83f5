package aggregator

import (
	"context"

	"github.com/chirino/unimsg/internal/model"
	"github.com/google/uuid"
)

// GetParticipant returns the participant with the given id.
func (s *Service) GetParticipant(ctx context.Context, id uuid.UUID) (*model.Participant, error) {
	return s.store.GetParticipant(ctx, id)
}

// FindParticipantByAddress returns the participant registered under address.
func (s *Service) FindParticipantByAddress(ctx context.Context, address string) (*model.Participant, error) {
	return s.store.FindParticipantByAddress(ctx, address)
}

// ListParticipants returns every participant ordered by address.
func (s *Service) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	return s.store.ListParticipants(ctx)
}

// GetConversation returns the conversation record without its messages.
func (s *Service) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// FindConversationByExternalID returns the conversation with the given external id.
func (s *Service) FindConversationByExternalID(ctx context.Context, externalID string) (*model.Conversation, error) {
	return s.store.FindConversationByExternalID(ctx, externalID)
}

// ListConversations returns every conversation, most recently started first.
func (s *Service) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	return s.store.ListConversations(ctx)
}

// UpdateConversationMetadata sets the provided summary and context fields.
// An empty update returns the conversation unchanged.
func (s *Service) UpdateConversationMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Conversation, error) {
	if update.IsEmpty() {
		return s.store.GetConversation(ctx, id)
	}
	return s.store.UpdateConversationMetadata(ctx, id, update)
}

// GetMessage returns the message with the given id.
func (s *Service) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	return s.store.GetMessage(ctx, id)
}

// ListMessages returns every message, most recently sent first.
func (s *Service) ListMessages(ctx context.Context) ([]model.Message, error) {
	return s.store.ListMessages(ctx)
}

// ListConversationMessages returns the messages of an existing conversation
// in chronological order.
func (s *Service) ListConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListConversationMessages(ctx, conversationID)
}

// UpdateMessageMetadata sets the provided summary and context fields. Every
// other message field is immutable.
func (s *Service) UpdateMessageMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Message, error) {
	if update.IsEmpty() {
		return s.store.GetMessage(ctx, id)
	}
	return s.store.UpdateMessageMetadata(ctx, id, update)
}

