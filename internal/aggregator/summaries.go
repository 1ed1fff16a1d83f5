package aggregator

import (
	"context"
	"strings"

	"github.com/chirino/unimsg/internal/model"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/google/uuid"
)

// SummaryInput selects messages of one conversation to annotate.
type SummaryInput struct {
	ConversationID uuid.UUID   `json:"conversationId"`
	MessageIDs     []uuid.UUID `json:"messageIds"`
	Summary        string      `json:"summary"`
	Context        *string     `json:"context,omitempty"`
}

// SummarizeMessages stores an immutable summary over a non-empty set of
// messages that all belong to in.ConversationID. The covered range spans the
// earliest and latest sent_at of the selection. Duplicate ids are collapsed.
func (s *Service) SummarizeMessages(ctx context.Context, in SummaryInput) (*model.MessageSummary, error) {
	ids := dedupeIDs(in.MessageIDs)
	if len(ids) == 0 {
		return nil, &registrystore.ValidationError{
			Field:   "messageIds",
			Code:    registrystore.CodeEmptySelection,
			Message: "at least one message id is required",
		}
	}
	if strings.TrimSpace(in.Summary) == "" {
		return nil, &registrystore.ValidationError{Field: "summary", Message: "must not be empty"}
	}

	messages, err := s.store.GetMessagesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	found := make(map[uuid.UUID]bool, len(messages))
	for _, m := range messages {
		found[m.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, &registrystore.ValidationError{
				Field:   "messageIds",
				Code:    registrystore.CodeMessageNotFound,
				Message: "message not found: " + id.String(),
			}
		}
	}
	for _, m := range messages {
		if m.ConversationID != in.ConversationID {
			return nil, &registrystore.ValidationError{
				Field:   "messageIds",
				Code:    registrystore.CodeConversationMismatch,
				Message: "message " + m.ID.String() + " does not belong to conversation " + in.ConversationID.String(),
			}
		}
	}
	if len(messages) == 0 {
		return nil, &registrystore.ValidationError{
			Field:   "messageIds",
			Code:    registrystore.CodeEmptySelection,
			Message: "no messages matched the selection",
		}
	}

	from, to := messages[0].SentAt, messages[0].SentAt
	for _, m := range messages[1:] {
		if m.SentAt.Before(from) {
			from = m.SentAt
		}
		if m.SentAt.After(to) {
			to = m.SentAt
		}
	}

	summary := model.MessageSummary{
		ID:             s.newID(),
		ConversationID: in.ConversationID,
		MessageIDs:     ids,
		Summary:        in.Summary,
		Context:        in.Context,
		CreatedAt:      s.timestamp(),
		FromDate:       NormalizeTime(from),
		ToDate:         NormalizeTime(to),
	}
	if err := s.store.InsertMessageSummary(ctx, summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListMessageSummaries returns the summaries of a conversation ordered by
// the start of their covered range.
func (s *Service) ListMessageSummaries(ctx context.Context, conversationID uuid.UUID) ([]model.MessageSummary, error) {
	return s.store.ListMessageSummaries(ctx, conversationID)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
