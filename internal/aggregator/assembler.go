package aggregator

import (
	"context"

	"github.com/chirino/unimsg/internal/model"
	"github.com/google/uuid"
)

// GetFullConversation assembles a conversation, its members and its messages
// from three independent reads. Members are returned in join order; ids that
// no longer resolve are skipped. Messages are ordered by sent_at ascending.
func (s *Service) GetFullConversation(ctx context.Context, conversationID uuid.UUID) (*model.FullConversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ids := conv.ParticipantIDs()
	participants := []model.Participant{}
	if len(ids) > 0 {
		found, err := s.store.GetParticipantsByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[uuid.UUID]model.Participant, len(found))
		for _, p := range found {
			byID[p.ID] = p
		}
		for _, id := range ids {
			if p, ok := byID[id]; ok {
				participants = append(participants, p)
			}
		}
	}

	messages, err := s.store.ListConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []model.Message{}
	}

	return &model.FullConversation{
		Conversation: *conv,
		Participants: participants,
		Messages:     messages,
	}, nil
}
