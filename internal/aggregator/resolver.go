package aggregator

import (
	"context"
	"strings"

	"github.com/chirino/unimsg/internal/model"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
)

// ParticipantInput identifies a participant by address and carries the
// descriptive fields refreshed on every resolution.
type ParticipantInput struct {
	Address     string                `json:"address"`
	DisplayName *string               `json:"displayName,omitempty"`
	Kind        model.ParticipantKind `json:"kind,omitempty"`
	Description *string               `json:"description,omitempty"`
}

// ConversationInput identifies a conversation by external id. Topic is only
// applied when the conversation is created.
type ConversationInput struct {
	ExternalID string  `json:"externalId"`
	Topic      *string `json:"topic,omitempty"`
}

func (in ParticipantInput) validate() error {
	if strings.TrimSpace(in.Address) == "" {
		return &registrystore.ValidationError{Field: "address", Message: "must not be empty"}
	}
	if in.Kind != "" && !in.Kind.Valid() {
		return &registrystore.ValidationError{Field: "kind", Message: "must be one of human, ai"}
	}
	return nil
}

func (in ConversationInput) validate() error {
	if strings.TrimSpace(in.ExternalID) == "" {
		return &registrystore.ValidationError{Field: "externalId", Message: "must not be empty"}
	}
	return nil
}

// ResolveParticipant returns the participant with the given address, creating
// it on first sight. Repeated calls return the same id; display name and
// description are overwritten with the latest values. Kind defaults to human
// for a new participant and is only changed when supplied.
func (s *Service) ResolveParticipant(ctx context.Context, in ParticipantInput) (*model.Participant, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p, err := s.store.UpsertParticipant(ctx, registrystore.ParticipantUpsert{
		ID:          s.newID(),
		Address:     in.Address,
		DisplayName: in.DisplayName,
		Kind:        in.Kind,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &registrystore.InvariantError{Op: "upsert participant", Message: "no participant returned for address " + in.Address}
	}
	return p, nil
}

// ResolveConversation returns the conversation with the given external id,
// creating it on first sight with the current time as its start timestamp.
func (s *Service) ResolveConversation(ctx context.Context, in ConversationInput) (*model.Conversation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	c, err := s.store.UpsertConversation(ctx, registrystore.ConversationUpsert{
		ID:         s.newID(),
		ExternalID: in.ExternalID,
		Topic:      in.Topic,
		StartedAt:  s.timestamp(),
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &registrystore.InvariantError{Op: "upsert conversation", Message: "no conversation returned for external id " + in.ExternalID}
	}
	return c, nil
}
