package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/unimsg/internal/model"
	"github.com/chirino/unimsg/internal/registry/store"
	"github.com/chirino/unimsg/internal/telemetry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore answers only the calls exercised below.
type stubStore struct {
	store.MessageStore
	added bool
}

func (s *stubStore) AddConversationParticipant(ctx context.Context, conversationID, participantID uuid.UUID, joinedAt time.Time) (bool, error) {
	return s.added, nil
}

func (s *stubStore) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	return nil, &store.NotFoundError{Resource: "message", ID: id.String()}
}

func TestWrapRecordsLatencyAndPassesResultsThrough(t *testing.T) {
	telemetry.InitMetrics(nil)
	wrapped := Wrap(&stubStore{added: true})

	before := testutil.CollectAndCount(telemetry.StoreLatency)
	added, err := wrapped.AddConversationParticipant(context.Background(), uuid.New(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.True(t, added)

	_, err = wrapped.GetMessage(context.Background(), uuid.New())
	var nf *store.NotFoundError
	assert.ErrorAs(t, err, &nf)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(telemetry.StoreLatency), before+1)
}
