package aggregator_test

import (
	"context"
	"sync"
	"testing"

	"github.com/chirino/unimsg/internal/aggregator"
	"github.com/chirino/unimsg/internal/model"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveParticipantIsIdempotentByAddress(t *testing.T) {
	svc, _, ctx := setupService(t)

	first, err := svc.ResolveParticipant(ctx, aggregator.ParticipantInput{
		Address: "a@x.com", DisplayName: ptr("Ann"), Kind: model.ParticipantKindHuman,
	})
	require.NoError(t, err)

	second, err := svc.ResolveParticipant(ctx, aggregator.ParticipantInput{
		Address: "a@x.com", DisplayName: ptr("Ann Smith"), Kind: model.ParticipantKindAI, Description: ptr("bot"),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ann Smith", *second.DisplayName)
	assert.Equal(t, model.ParticipantKindAI, second.Kind)
	assert.Equal(t, "bot", *second.Description)
}

func TestResolveParticipantDefaultsKindToHuman(t *testing.T) {
	svc, _, _ := setupService(t)
	p := resolveParticipant(t, svc, "b@x.com")
	assert.Equal(t, model.ParticipantKindHuman, p.Kind)
}

func TestResolveParticipantValidation(t *testing.T) {
	svc, _, ctx := setupService(t)

	_, err := svc.ResolveParticipant(ctx, aggregator.ParticipantInput{Address: "   "})
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "address", ve.Field)

	_, err = svc.ResolveParticipant(ctx, aggregator.ParticipantInput{Address: "c@x.com", Kind: "robot"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "kind", ve.Field)
	assert.Equal(t, registrystore.CodeValidation, ve.ErrorCode())
}

func TestResolveConversationPreservesFirstInsertFields(t *testing.T) {
	svc, _, ctx := setupService(t)

	first, err := svc.ResolveConversation(ctx, aggregator.ConversationInput{ExternalID: "ext-1", Topic: ptr("Launch")})
	require.NoError(t, err)
	second, err := svc.ResolveConversation(ctx, aggregator.ConversationInput{ExternalID: "ext-1", Topic: ptr("Renamed")})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.StartedAt.Equal(second.StartedAt))
	assert.True(t, epoch.Equal(first.StartedAt))
	assert.Equal(t, "Launch", *second.Topic)
	assert.Empty(t, second.Participants)
}

func TestResolveConversationRejectsEmptyExternalID(t *testing.T) {
	svc, _, ctx := setupService(t)
	_, err := svc.ResolveConversation(ctx, aggregator.ConversationInput{})
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "externalId", ve.Field)
}

func TestConcurrentFirstResolutionsShareOneID(t *testing.T) {
	svc, store, ctx := setupService(t)

	const workers = 10
	var wg sync.WaitGroup
	participantIDs := make([]uuid.UUID, workers)
	conversationIDs := make([]uuid.UUID, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := svc.ResolveParticipant(ctx, aggregator.ParticipantInput{Address: "race@x.com"})
			if assert.NoError(t, err) {
				participantIDs[i] = p.ID
			}
			c, err := svc.ResolveConversation(ctx, aggregator.ConversationInput{ExternalID: "race"})
			if assert.NoError(t, err) {
				conversationIDs[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Equal(t, participantIDs[0], participantIDs[i])
		assert.Equal(t, conversationIDs[0], conversationIDs[i])
	}
	all, err := store.ListParticipants(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// nilStore returns no record from an upsert, which the service must treat
// as a broken store rather than a missing entity.
type nilStore struct {
	registrystore.MessageStore
}

func (nilStore) UpsertParticipant(context.Context, registrystore.ParticipantUpsert) (*model.Participant, error) {
	return nil, nil
}

func (nilStore) UpsertConversation(context.Context, registrystore.ConversationUpsert) (*model.Conversation, error) {
	return nil, nil
}

func TestResolveReportsInvariantWhenStoreReturnsNothing(t *testing.T) {
	svc := aggregator.New(nilStore{})
	var ie *registrystore.InvariantError

	_, err := svc.ResolveParticipant(context.Background(), aggregator.ParticipantInput{Address: "a@x.com"})
	assert.ErrorAs(t, err, &ie)

	_, err = svc.ResolveConversation(context.Background(), aggregator.ConversationInput{ExternalID: "ext"})
	assert.ErrorAs(t, err, &ie)
}
