package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chirino/unimsg/internal/aggregator"
	"github.com/chirino/unimsg/internal/config"
	"github.com/chirino/unimsg/internal/model"
	"github.com/chirino/unimsg/internal/plugin/store/gormstore"
	"github.com/chirino/unimsg/internal/testutil/testsqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxBodySizeMiddleware_EnforcesLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(4))
	router.POST("/v1/messages", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMaxBodySizeMiddleware_ZeroDisablesLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(0))
	router.POST("/v1/messages", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader("0123456789"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10", rec.Body.String())
}

func readBodyLengthHandler(c *gin.Context) {
	n, err := io.Copy(io.Discard, c.Request.Body)
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	c.String(http.StatusOK, "%d", n)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = config.DatastoreSQLite
	cfg.DBURL = testsqlite.DSN(t)
	cfg.Listener.Port = 0
	return cfg
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := testConfig(t)
	ctx := context.Background()

	db, err := gormstore.Open(&cfg)
	require.NoError(t, err)
	require.NoError(t, gormstore.Migrate(ctx, db))
	store := gormstore.New(db)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	router, err := NewRouter(&cfg, aggregator.New(store))
	require.NoError(t, err)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Field string `json:"field"`
}

func TestAPI_ConversationLifecycle(t *testing.T) {
	router := setupRouter(t)
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := doJSON(t, router, http.MethodPost, "/v1/participants", map[string]any{
		"address": "alice@example.com", "displayName": "Alice",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	alice := decode[model.Participant](t, rec)
	assert.Equal(t, model.ParticipantKindHuman, alice.Kind)

	rec = doJSON(t, router, http.MethodPost, "/v1/participants", map[string]any{
		"address": "bot@example.com", "kind": "ai",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bot := decode[model.Participant](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/v1/conversations", map[string]any{
		"externalId": "thread-1", "topic": "Launch",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	conv := decode[model.Conversation](t, rec)
	assert.Empty(t, conv.Participants)

	var messageIDs []uuid.UUID
	for i, sender := range []uuid.UUID{alice.ID, bot.ID, alice.ID} {
		rec = doJSON(t, router, http.MethodPost, "/v1/messages", map[string]any{
			"conversationId": conv.ID,
			"senderId":       sender,
			"channel":        "email",
			"sentAt":         t0.Add(time.Duration(i) * time.Minute),
			"content":        fmt.Sprintf("message %d", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		messageIDs = append(messageIDs, decode[model.Message](t, rec).ID)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	full := decode[model.FullConversation](t, rec)
	require.Len(t, full.Participants, 2)
	assert.Equal(t, alice.ID, full.Participants[0].ID)
	assert.Equal(t, bot.ID, full.Participants[1].ID)
	require.Len(t, full.Messages, 3)
	assert.Equal(t, "message 0", full.Messages[0].Content)
	assert.Equal(t, "message 2", full.Messages[2].Content)

	rec = doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID.String()+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listResponse[model.Message]](t, rec).Data, 3)

	rec = doJSON(t, router, http.MethodPost, "/v1/message-summaries", map[string]any{
		"conversationId": conv.ID,
		"messageIds":     []uuid.UUID{messageIDs[2], messageIDs[0]},
		"summary":        "Alice opened and closed the thread",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	summary := decode[model.MessageSummary](t, rec)
	assert.True(t, t0.Equal(summary.FromDate))
	assert.True(t, t0.Add(2*time.Minute).Equal(summary.ToDate))

	rec = doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID.String()+"/summaries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decode[listResponse[model.MessageSummary]](t, rec).Data
	require.Len(t, summaries, 1)
	assert.Equal(t, summary.ID, summaries[0].ID)

	rec = doJSON(t, router, http.MethodPut, "/v1/conversations/"+conv.ID.String()+"/metadata", map[string]any{
		"summary": "launch planning",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Conversation](t, rec)
	require.NotNil(t, updated.Summary)
	assert.Equal(t, "launch planning", *updated.Summary)

	rec = doJSON(t, router, http.MethodPut, "/v1/messages/"+messageIDs[1].String()+"/metadata", map[string]any{
		"context": "reply",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msg := decode[model.Message](t, rec)
	require.NotNil(t, msg.Context)
	assert.Equal(t, "reply", *msg.Context)
}

func TestAPI_Lookups(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/ingest", map[string]any{
		"conversation": map[string]any{"externalId": "chat-42"},
		"sender":       map[string]any{"address": "+15550100", "displayName": "Bob"},
		"channel":      "sms",
		"sentAt":       time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC),
		"content":      "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[aggregator.IngestResult](t, rec)
	require.Len(t, res.Conversation.Participants, 1)
	assert.Equal(t, res.Participant.ID, res.Conversation.Participants[0].ParticipantID)

	rec = doJSON(t, router, http.MethodGet, "/v1/participants?address=%2B15550100", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, res.Participant.ID, decode[model.Participant](t, rec).ID)

	rec = doJSON(t, router, http.MethodGet, "/v1/participants/"+res.Participant.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/conversations?externalId=chat-42", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, res.Conversation.ID, decode[model.Conversation](t, rec).ID)

	rec = doJSON(t, router, http.MethodGet, "/v1/messages/"+res.Message.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{"/v1/participants", "/v1/conversations", "/v1/messages"} {
		rec = doJSON(t, router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Len(t, decode[listResponse[json.RawMessage]](t, rec).Data, 1, path)
	}
}

func TestAPI_Errors(t *testing.T) {
	router := setupRouter(t)

	t.Run("malformed id is not found", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/v1/conversations/not-a-uuid", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decode[errorResponse](t, rec).Code)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		for _, path := range []string{
			"/v1/participants/" + uuid.NewString(),
			"/v1/conversations/" + uuid.NewString(),
			"/v1/conversations/" + uuid.NewString() + "/messages",
			"/v1/messages/" + uuid.NewString(),
			"/v1/participants?address=nobody",
			"/v1/conversations?externalId=missing",
		} {
			rec := doJSON(t, router, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusNotFound, rec.Code, path)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/participants", "{")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", decode[errorResponse](t, rec).Code)
	})

	t.Run("empty address", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/participants", map[string]any{"address": "  "})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", decode[errorResponse](t, rec).Code)
	})

	t.Run("message for unknown conversation", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/messages", map[string]any{
			"conversationId": uuid.New(),
			"senderId":       uuid.New(),
			"channel":        "email",
			"sentAt":         time.Now().UTC(),
			"content":        "hi",
		})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("summary selection codes", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/message-summaries", map[string]any{
			"conversationId": uuid.New(),
			"messageIds":     []uuid.UUID{},
			"summary":        "x",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "empty_selection", decode[errorResponse](t, rec).Code)

		rec = doJSON(t, router, http.MethodPost, "/v1/message-summaries", map[string]any{
			"conversationId": uuid.New(),
			"messageIds":     []uuid.UUID{uuid.New()},
			"summary":        "x",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "message_not_found", decode[errorResponse](t, rec).Code)
	})
}

func TestStartServer_ServesHealthAndAPI(t *testing.T) {
	cfg := testConfig(t)
	srv, err := StartServer(context.Background(), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Running.Port)

	resp, err := http.Get(base + "/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/v1/participants", "application/json", strings.NewReader(`{"address":"carol@example.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p model.Participant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, "carol@example.com", p.Address)
}
