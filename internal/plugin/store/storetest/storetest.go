// Package storetest holds the behavioural contract every MessageStore
// implementation must satisfy. Store packages run it against a live backend.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chirino/unimsg/internal/model"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSuite runs the contract against store. The suite only creates records
// with unique keys, so a single store may be shared between subtests.
func RunSuite(t *testing.T, store registrystore.MessageStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("participant upsert is idempotent by address", func(t *testing.T) {
		addr := unique("alice@example.com")
		first, err := store.UpsertParticipant(ctx, participantUpsert(addr, "Alice", model.ParticipantKindHuman))
		require.NoError(t, err)

		second, err := store.UpsertParticipant(ctx, participantUpsert(addr, "Alice B.", model.ParticipantKindAI))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, addr, second.Address)
		require.NotNil(t, second.DisplayName)
		assert.Equal(t, "Alice B.", *second.DisplayName)
		assert.Equal(t, model.ParticipantKindAI, second.Kind)

		got, err := store.FindParticipantByAddress(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("participant upsert without kind keeps existing kind", func(t *testing.T) {
		addr := unique("agent@example.com")
		first, err := store.UpsertParticipant(ctx, participantUpsert(addr, "Agent", model.ParticipantKindAI))
		require.NoError(t, err)

		second, err := store.UpsertParticipant(ctx, participantUpsert(addr, "Agent 2", ""))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, model.ParticipantKindAI, second.Kind)
		require.NotNil(t, second.DisplayName)
		assert.Equal(t, "Agent 2", *second.DisplayName)
	})

	t.Run("participant upsert without kind creates a human", func(t *testing.T) {
		p, err := store.UpsertParticipant(ctx, participantUpsert(unique("dana@example.com"), "Dana", ""))
		require.NoError(t, err)
		assert.Equal(t, model.ParticipantKindHuman, p.Kind)
	})

	t.Run("participant upsert clears omitted descriptive fields", func(t *testing.T) {
		addr := unique("bob@example.com")
		_, err := store.UpsertParticipant(ctx, participantUpsert(addr, "Bob", model.ParticipantKindHuman))
		require.NoError(t, err)

		p, err := store.UpsertParticipant(ctx, registrystore.ParticipantUpsert{
			ID: uuid.New(), Address: addr, Kind: model.ParticipantKindHuman,
		})
		require.NoError(t, err)
		assert.Nil(t, p.DisplayName)
	})

	t.Run("concurrent participant upserts converge on one record", func(t *testing.T) {
		addr := unique("race@example.com")
		const workers = 8
		ids := make([]uuid.UUID, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p, err := store.UpsertParticipant(ctx, participantUpsert(addr, "Racer", model.ParticipantKindAI))
				if assert.NoError(t, err) {
					ids[i] = p.ID
				}
			}(i)
		}
		wg.Wait()
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("missing participant is not found", func(t *testing.T) {
		_, err := store.GetParticipant(ctx, uuid.New())
		assertNotFound(t, err)
		_, err = store.FindParticipantByAddress(ctx, unique("nobody"))
		assertNotFound(t, err)
	})

	t.Run("participants by ids skips unknown ids", func(t *testing.T) {
		p, err := store.UpsertParticipant(ctx, participantUpsert(unique("carol"), "Carol", model.ParticipantKindHuman))
		require.NoError(t, err)

		got, err := store.GetParticipantsByIDs(ctx, []uuid.UUID{p.ID, uuid.New()})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, p.ID, got[0].ID)

		got, err = store.GetParticipantsByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("list participants is ordered by address", func(t *testing.T) {
		prefix := unique("list")
		for _, suffix := range []string{"-b", "-a", "-c"} {
			_, err := store.UpsertParticipant(ctx, participantUpsert(prefix+suffix, "", model.ParticipantKindHuman))
			require.NoError(t, err)
		}
		all, err := store.ListParticipants(ctx)
		require.NoError(t, err)
		var ours []string
		for _, p := range all {
			if len(p.Address) > len(prefix) && p.Address[:len(prefix)] == prefix {
				ours = append(ours, p.Address)
			}
		}
		assert.Equal(t, []string{prefix + "-a", prefix + "-b", prefix + "-c"}, ours)
	})

	t.Run("conversation upsert sets fields only on insert", func(t *testing.T) {
		ext := unique("thread")
		startedAt := normalized(time.Now().Add(-time.Hour))
		first, err := store.UpsertConversation(ctx, registrystore.ConversationUpsert{
			ID: uuid.New(), ExternalID: ext, Topic: ptr("Planning"), StartedAt: startedAt,
		})
		require.NoError(t, err)
		assert.Empty(t, first.Participants)
		assert.True(t, startedAt.Equal(first.StartedAt))

		second, err := store.UpsertConversation(ctx, registrystore.ConversationUpsert{
			ID: uuid.New(), ExternalID: ext, Topic: ptr("Other"), StartedAt: normalized(time.Now()),
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		require.NotNil(t, second.Topic)
		assert.Equal(t, "Planning", *second.Topic)
		assert.True(t, startedAt.Equal(second.StartedAt))
	})

	t.Run("concurrent conversation upserts converge on one record", func(t *testing.T) {
		ext := unique("race-thread")
		const workers = 8
		ids := make([]uuid.UUID, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c, err := store.UpsertConversation(ctx, registrystore.ConversationUpsert{
					ID: uuid.New(), ExternalID: ext, StartedAt: normalized(time.Now()),
				})
				if assert.NoError(t, err) {
					ids[i] = c.ID
				}
			}(i)
		}
		wg.Wait()
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("membership append is conditional", func(t *testing.T) {
		conv := newConversation(t, store)
		p := newParticipant(t, store)
		joinedAt := normalized(time.Now())

		added, err := store.AddConversationParticipant(ctx, conv.ID, p.ID, joinedAt)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = store.AddConversationParticipant(ctx, conv.ID, p.ID, joinedAt.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, added)

		got, err := store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, got.Participants, 1)
		assert.Equal(t, p.ID, got.Participants[0].ParticipantID)
		assert.True(t, joinedAt.Equal(got.Participants[0].JoinedAt))
	})

	t.Run("concurrent membership appends record one member", func(t *testing.T) {
		conv := newConversation(t, store)
		p := newParticipant(t, store)
		const workers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		addedCount := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				added, err := store.AddConversationParticipant(ctx, conv.ID, p.ID, normalized(time.Now()))
				if assert.NoError(t, err) && added {
					mu.Lock()
					addedCount++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, addedCount)

		got, err := store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Len(t, got.Participants, 1)
	})

	t.Run("membership append on missing conversation is a no-op", func(t *testing.T) {
		p := newParticipant(t, store)
		added, err := store.AddConversationParticipant(ctx, uuid.New(), p.ID, normalized(time.Now()))
		require.NoError(t, err)
		assert.False(t, added)
	})

	t.Run("members keep join order", func(t *testing.T) {
		conv := newConversation(t, store)
		base := normalized(time.Now())
		var want []uuid.UUID
		for i := 0; i < 3; i++ {
			p := newParticipant(t, store)
			_, err := store.AddConversationParticipant(ctx, conv.ID, p.ID, base.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
			want = append(want, p.ID)
		}
		got, err := store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got.ParticipantIDs())
	})

	t.Run("conversations list most recently started first", func(t *testing.T) {
		base := normalized(time.Now().Add(24 * time.Hour))
		older, err := store.UpsertConversation(ctx, registrystore.ConversationUpsert{
			ID: uuid.New(), ExternalID: unique("older"), StartedAt: base,
		})
		require.NoError(t, err)
		newer, err := store.UpsertConversation(ctx, registrystore.ConversationUpsert{
			ID: uuid.New(), ExternalID: unique("newer"), StartedAt: base.Add(time.Minute),
		})
		require.NoError(t, err)

		all, err := store.ListConversations(ctx)
		require.NoError(t, err)
		assert.Less(t, indexOfConversation(all, newer.ID), indexOfConversation(all, older.ID))
		assert.GreaterOrEqual(t, indexOfConversation(all, newer.ID), 0)
	})

	t.Run("conversation metadata update sets only provided fields", func(t *testing.T) {
		conv := newConversation(t, store)
		got, err := store.UpdateConversationMetadata(ctx, conv.ID, model.MetadataUpdate{Summary: ptr("weekly sync")})
		require.NoError(t, err)
		require.NotNil(t, got.Summary)
		assert.Equal(t, "weekly sync", *got.Summary)
		assert.Nil(t, got.Context)

		got, err = store.UpdateConversationMetadata(ctx, conv.ID, model.MetadataUpdate{Context: ptr("{}")})
		require.NoError(t, err)
		assert.Equal(t, "weekly sync", *got.Summary)
		assert.Equal(t, "{}", *got.Context)

		_, err = store.UpdateConversationMetadata(ctx, uuid.New(), model.MetadataUpdate{Summary: ptr("x")})
		assertNotFound(t, err)
	})

	t.Run("conversation messages are chronological with insertion tie-break", func(t *testing.T) {
		conv := newConversation(t, store)
		p := newParticipant(t, store)
		base := normalized(time.Now())

		late := newMessage(conv.ID, p.ID, base.Add(2*time.Second), base)
		tieA := newMessage(conv.ID, p.ID, base, base.Add(time.Millisecond))
		tieB := newMessage(conv.ID, p.ID, base, base.Add(2*time.Millisecond))
		for _, m := range []model.Message{late, tieB, tieA} {
			require.NoError(t, store.InsertMessage(ctx, m))
		}

		got, err := store.ListConversationMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []uuid.UUID{tieA.ID, tieB.ID, late.ID}, []uuid.UUID{got[0].ID, got[1].ID, got[2].ID})

		all, err := store.ListMessages(ctx)
		require.NoError(t, err)
		assert.Less(t, indexOfMessage(all, late.ID), indexOfMessage(all, tieA.ID))
	})

	t.Run("message round trips and metadata update", func(t *testing.T) {
		conv := newConversation(t, store)
		p := newParticipant(t, store)
		m := newMessage(conv.ID, p.ID, normalized(time.Now()), normalized(time.Now()))
		m.ExternalID = ptr("slack-123")
		require.NoError(t, store.InsertMessage(ctx, m))

		got, err := store.GetMessage(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.Content, got.Content)
		assert.Equal(t, m.Channel, got.Channel)
		assert.Equal(t, "slack-123", *got.ExternalID)
		assert.True(t, m.SentAt.Equal(got.SentAt))

		updated, err := store.UpdateMessageMetadata(ctx, m.ID, model.MetadataUpdate{Summary: ptr("greeting")})
		require.NoError(t, err)
		assert.Equal(t, "greeting", *updated.Summary)
		assert.Equal(t, m.Content, updated.Content)

		_, err = store.UpdateMessageMetadata(ctx, uuid.New(), model.MetadataUpdate{Summary: ptr("x")})
		assertNotFound(t, err)
		_, err = store.GetMessage(ctx, uuid.New())
		assertNotFound(t, err)
	})

	t.Run("messages by ids skips unknown ids", func(t *testing.T) {
		conv := newConversation(t, store)
		p := newParticipant(t, store)
		m := newMessage(conv.ID, p.ID, normalized(time.Now()), normalized(time.Now()))
		require.NoError(t, store.InsertMessage(ctx, m))

		got, err := store.GetMessagesByIDs(ctx, []uuid.UUID{m.ID, uuid.New()})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, m.ID, got[0].ID)
	})

	t.Run("summaries list by range start", func(t *testing.T) {
		conv := newConversation(t, store)
		base := normalized(time.Now())
		later := model.MessageSummary{
			ID: uuid.New(), ConversationID: conv.ID, MessageIDs: []uuid.UUID{uuid.New()},
			Summary: "later", CreatedAt: base, FromDate: base.Add(time.Hour), ToDate: base.Add(2 * time.Hour),
		}
		earlier := model.MessageSummary{
			ID: uuid.New(), ConversationID: conv.ID, MessageIDs: []uuid.UUID{uuid.New(), uuid.New()},
			Summary: "earlier", Context: ptr("ctx"), CreatedAt: base, FromDate: base, ToDate: base.Add(time.Minute),
		}
		require.NoError(t, store.InsertMessageSummary(ctx, later))
		require.NoError(t, store.InsertMessageSummary(ctx, earlier))

		got, err := store.ListMessageSummaries(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, earlier.ID, got[0].ID)
		assert.Equal(t, earlier.MessageIDs, got[0].MessageIDs)
		assert.True(t, earlier.ToDate.Equal(got[0].ToDate))
		assert.Equal(t, later.ID, got[1].ID)

		none, err := store.ListMessageSummaries(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func unique(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func ptr(s string) *string { return &s }

func normalized(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func participantUpsert(addr, name string, kind model.ParticipantKind) registrystore.ParticipantUpsert {
	u := registrystore.ParticipantUpsert{ID: uuid.New(), Address: addr, Kind: kind}
	if name != "" {
		u.DisplayName = &name
	}
	return u
}

func newParticipant(t *testing.T, store registrystore.MessageStore) *model.Participant {
	t.Helper()
	p, err := store.UpsertParticipant(context.Background(), participantUpsert(unique("member"), "Member", model.ParticipantKindHuman))
	require.NoError(t, err)
	return p
}

func newConversation(t *testing.T, store registrystore.MessageStore) *model.Conversation {
	t.Helper()
	c, err := store.UpsertConversation(context.Background(), registrystore.ConversationUpsert{
		ID: uuid.New(), ExternalID: unique("conv"), StartedAt: normalized(time.Now()),
	})
	require.NoError(t, err)
	return c
}

func newMessage(convID, senderID uuid.UUID, sentAt, createdAt time.Time) model.Message {
	return model.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       senderID,
		Channel:        "email",
		SentAt:         sentAt,
		Content:        "hello " + uuid.NewString(),
		CreatedAt:      createdAt,
	}
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *registrystore.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func indexOfConversation(list []model.Conversation, id uuid.UUID) int {
	for i, c := range list {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func indexOfMessage(list []model.Message, id uuid.UUID) int {
	for i, m := range list {
		if m.ID == id {
			return i
		}
	}
	return -1
}
