package aggregator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chirino/unimsg/internal/aggregator"
	"github.com/chirino/unimsg/internal/config"
	"github.com/chirino/unimsg/internal/model"
	"github.com/chirino/unimsg/internal/plugin/store/gormstore"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/chirino/unimsg/internal/testutil/testsqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// steppingClock returns a clock that advances one millisecond per reading.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Millisecond)
		return t
	}
}

func setupService(t *testing.T) (*aggregator.Service, registrystore.MessageStore, context.Context) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DatastoreType = config.DatastoreSQLite
	cfg.DBURL = testsqlite.DSN(t)
	ctx := context.Background()

	db, err := gormstore.Open(&cfg)
	require.NoError(t, err)
	require.NoError(t, gormstore.Migrate(ctx, db))

	store := gormstore.New(db)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return aggregator.New(store, aggregator.WithClock(steppingClock(epoch))), store, ctx
}

func resolveParticipant(t *testing.T, svc *aggregator.Service, address string) *model.Participant {
	t.Helper()
	p, err := svc.ResolveParticipant(context.Background(), aggregator.ParticipantInput{Address: address})
	require.NoError(t, err)
	return p
}

func resolveConversation(t *testing.T, svc *aggregator.Service, externalID string) *model.Conversation {
	t.Helper()
	c, err := svc.ResolveConversation(context.Background(), aggregator.ConversationInput{ExternalID: externalID})
	require.NoError(t, err)
	return c
}

func recordMessage(t *testing.T, svc *aggregator.Service, convID, senderID uuid.UUID, sentAt time.Time, content string) *model.Message {
	t.Helper()
	m, err := svc.RecordMessage(context.Background(), aggregator.MessageInput{
		ConversationID: convID,
		SenderID:       senderID,
		Channel:        "email",
		SentAt:         sentAt,
		Content:        content,
	})
	require.NoError(t, err)
	return m
}

func ptr(s string) *string { return &s }
