package metrics

import (
	"context"
	"time"

	"github.com/chirino/unimsg/internal/model"
	"github.com/chirino/unimsg/internal/registry/store"
	"github.com/chirino/unimsg/internal/telemetry"
	"github.com/google/uuid"
)

// Wrap returns a MessageStore that records StoreLatency for every operation.
func Wrap(inner store.MessageStore) store.MessageStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.MessageStore
}

func observe(op string, start time.Time) {
	telemetry.ObserveStore(op, start)
}

func (m *metricsStore) UpsertParticipant(ctx context.Context, p store.ParticipantUpsert) (*model.Participant, error) {
	defer observe("upsert_participant", time.Now())
	return m.inner.UpsertParticipant(ctx, p)
}

func (m *metricsStore) GetParticipant(ctx context.Context, id uuid.UUID) (*model.Participant, error) {
	defer observe("get_participant", time.Now())
	return m.inner.GetParticipant(ctx, id)
}

func (m *metricsStore) FindParticipantByAddress(ctx context.Context, address string) (*model.Participant, error) {
	defer observe("find_participant_by_address", time.Now())
	return m.inner.FindParticipantByAddress(ctx, address)
}

func (m *metricsStore) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	defer observe("list_participants", time.Now())
	return m.inner.ListParticipants(ctx)
}

func (m *metricsStore) GetParticipantsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Participant, error) {
	defer observe("get_participants_by_ids", time.Now())
	return m.inner.GetParticipantsByIDs(ctx, ids)
}

func (m *metricsStore) UpsertConversation(ctx context.Context, c store.ConversationUpsert) (*model.Conversation, error) {
	defer observe("upsert_conversation", time.Now())
	return m.inner.UpsertConversation(ctx, c)
}

func (m *metricsStore) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, id)
}

func (m *metricsStore) FindConversationByExternalID(ctx context.Context, externalID string) (*model.Conversation, error) {
	defer observe("find_conversation_by_external_id", time.Now())
	return m.inner.FindConversationByExternalID(ctx, externalID)
}

func (m *metricsStore) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversations(ctx)
}

func (m *metricsStore) UpdateConversationMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Conversation, error) {
	defer observe("update_conversation_metadata", time.Now())
	return m.inner.UpdateConversationMetadata(ctx, id, update)
}

func (m *metricsStore) AddConversationParticipant(ctx context.Context, conversationID uuid.UUID, participantID uuid.UUID, joinedAt time.Time) (bool, error) {
	defer observe("add_conversation_participant", time.Now())
	return m.inner.AddConversationParticipant(ctx, conversationID, participantID, joinedAt)
}

func (m *metricsStore) InsertMessage(ctx context.Context, msg model.Message) error {
	defer observe("insert_message", time.Now())
	return m.inner.InsertMessage(ctx, msg)
}

func (m *metricsStore) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, id)
}

func (m *metricsStore) ListMessages(ctx context.Context) ([]model.Message, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx)
}

func (m *metricsStore) ListConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	defer observe("list_conversation_messages", time.Now())
	return m.inner.ListConversationMessages(ctx, conversationID)
}

func (m *metricsStore) GetMessagesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Message, error) {
	defer observe("get_messages_by_ids", time.Now())
	return m.inner.GetMessagesByIDs(ctx, ids)
}

func (m *metricsStore) UpdateMessageMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Message, error) {
	defer observe("update_message_metadata", time.Now())
	return m.inner.UpdateMessageMetadata(ctx, id, update)
}

func (m *metricsStore) InsertMessageSummary(ctx context.Context, sum model.MessageSummary) error {
	defer observe("insert_message_summary", time.Now())
	return m.inner.InsertMessageSummary(ctx, sum)
}

func (m *metricsStore) ListMessageSummaries(ctx context.Context, conversationID uuid.UUID) ([]model.MessageSummary, error) {
	defer observe("list_message_summaries", time.Now())
	return m.inner.ListMessageSummaries(ctx, conversationID)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}
