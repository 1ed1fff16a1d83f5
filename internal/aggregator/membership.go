package aggregator

import (
	"context"

	"github.com/google/uuid"
)

// EnsureMember records participantID as a member of conversationID unless it
// already is one. It reports whether a new membership record was written.
// Neither an existing membership nor a missing conversation is an error;
// callers that need existence guarantees check before calling.
func (s *Service) EnsureMember(ctx context.Context, conversationID, participantID uuid.UUID) (bool, error) {
	return s.store.AddConversationParticipant(ctx, conversationID, participantID, s.timestamp())
}
