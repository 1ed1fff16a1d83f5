package aggregator_test

import (
	"testing"
	"time"

	"github.com/chirino/unimsg/internal/aggregator"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
}

func TestSummarizeMessagesCoversSentAtRange(t *testing.T) {
	svc, _, ctx := setupService(t)
	conv := resolveConversation(t, svc, "ext-1")
	p := resolveParticipant(t, svc, "a@x.com")

	m1 := recordMessage(t, svc, conv.ID, p.ID, at(10, 0), "one")
	m2 := recordMessage(t, svc, conv.ID, p.ID, at(10, 30), "two")
	m3 := recordMessage(t, svc, conv.ID, p.ID, at(9, 45), "three")

	sum, err := svc.SummarizeMessages(ctx, aggregator.SummaryInput{
		ConversationID: conv.ID,
		MessageIDs:     []uuid.UUID{m1.ID, m2.ID, m3.ID, m1.ID},
		Summary:        "morning chat",
	})
	require.NoError(t, err)
	assert.True(t, at(9, 45).Equal(sum.FromDate))
	assert.True(t, at(10, 30).Equal(sum.ToDate))
	assert.Equal(t, []uuid.UUID{m1.ID, m2.ID, m3.ID}, sum.MessageIDs)

	list, err := svc.ListMessageSummaries(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sum.ID, list[0].ID)
}

func TestSummarizeMessagesRejectsForeignMessage(t *testing.T) {
	svc, _, ctx := setupService(t)
	convA := resolveConversation(t, svc, "ext-a")
	convB := resolveConversation(t, svc, "ext-b")
	p := resolveParticipant(t, svc, "a@x.com")

	mine := recordMessage(t, svc, convA.ID, p.ID, at(10, 0), "mine")
	theirs := recordMessage(t, svc, convB.ID, p.ID, at(10, 5), "theirs")

	_, err := svc.SummarizeMessages(ctx, aggregator.SummaryInput{
		ConversationID: convA.ID,
		MessageIDs:     []uuid.UUID{mine.ID, theirs.ID},
		Summary:        "mixed",
	})
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, registrystore.CodeConversationMismatch, ve.ErrorCode())

	list, err := svc.ListMessageSummaries(ctx, convA.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSummarizeMessagesRejectsUnknownMessage(t *testing.T) {
	svc, _, ctx := setupService(t)
	conv := resolveConversation(t, svc, "ext-1")
	p := resolveParticipant(t, svc, "a@x.com")
	m := recordMessage(t, svc, conv.ID, p.ID, at(10, 0), "one")

	_, err := svc.SummarizeMessages(ctx, aggregator.SummaryInput{
		ConversationID: conv.ID,
		MessageIDs:     []uuid.UUID{m.ID, uuid.New()},
		Summary:        "partial",
	})
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, registrystore.CodeMessageNotFound, ve.ErrorCode())
}

func TestSummarizeMessagesRejectsEmptySelection(t *testing.T) {
	svc, _, ctx := setupService(t)
	conv := resolveConversation(t, svc, "ext-1")

	_, err := svc.SummarizeMessages(ctx, aggregator.SummaryInput{ConversationID: conv.ID, Summary: "nothing"})
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, registrystore.CodeEmptySelection, ve.ErrorCode())
}

func TestSummarizeMessagesRequiresText(t *testing.T) {
	svc, _, ctx := setupService(t)
	conv := resolveConversation(t, svc, "ext-1")
	p := resolveParticipant(t, svc, "a@x.com")
	m := recordMessage(t, svc, conv.ID, p.ID, at(10, 0), "one")

	_, err := svc.SummarizeMessages(ctx, aggregator.SummaryInput{ConversationID: conv.ID, MessageIDs: []uuid.UUID{m.ID}})
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "summary", ve.Field)
}

func TestListMessageSummariesOrderedByRangeStart(t *testing.T) {
	svc, _, ctx := setupService(t)
	conv := resolveConversation(t, svc, "ext-1")
	p := resolveParticipant(t, svc, "a@x.com")
	late := recordMessage(t, svc, conv.ID, p.ID, at(15, 0), "late")
	early := recordMessage(t, svc, conv.ID, p.ID, at(8, 0), "early")

	_, err := svc.SummarizeMessages(ctx, aggregator.SummaryInput{ConversationID: conv.ID, MessageIDs: []uuid.UUID{late.ID}, Summary: "afternoon"})
	require.NoError(t, err)
	_, err = svc.SummarizeMessages(ctx, aggregator.SummaryInput{ConversationID: conv.ID, MessageIDs: []uuid.UUID{early.ID}, Summary: "morning"})
	require.NoError(t, err)

	list, err := svc.ListMessageSummaries(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "morning", list[0].Summary)
	assert.Equal(t, "afternoon", list[1].Summary)
}
