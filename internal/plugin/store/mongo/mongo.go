package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/unimsg/internal/config"
	"github.com/chirino/unimsg/internal/model"
	registrymigrate "github.com/chirino/unimsg/internal/registry/migrate"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: config.DatastoreMongo,
		Loader: func(ctx context.Context) (registrystore.MessageStore, error) {
			cfg := config.FromContext(ctx)
			client, err := connect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return New(client, cfg.DBName), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

func connect(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.DBURL)
	if cfg.DBMaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
	}
	if cfg.DBMaxIdleConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != config.DatastoreMongo {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	client, err := connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mongo migration: %w", err)
	}
	defer client.Disconnect(ctx)

	if err := EnsureIndexes(ctx, client.Database(cfg.DBName)); err != nil {
		return err
	}
	log.Info("MongoDB schema migration complete", "database", cfg.DBName)
	return nil
}

// EnsureIndexes creates the collections and the indexes the store relies on.
// The unique indexes on address and external_id back the natural-key upserts.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	collections := map[string][]mongo.IndexModel{
		collParticipants: {
			{Keys: bson.D{{Key: "address", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collConversations: {
			{Keys: bson.D{{Key: "external_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "started_at", Value: -1}}},
		},
		collMessages: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sent_at", Value: 1}}},
			{Keys: bson.D{{Key: "sent_at", Value: -1}}},
		},
		collSummaries: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "from_date", Value: 1}}},
		},
	}

	for name, indexes := range collections {
		// Fails when the collection exists already, which is fine.
		_ = db.CreateCollection(ctx, name)
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

const (
	collParticipants  = "participants"
	collConversations = "conversations"
	collMessages      = "messages"
	collSummaries     = "message_summaries"
)

// MongoStore implements MessageStore on MongoDB. Membership is embedded in
// the conversation document so that the conditional append is a single
// atomic update.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// New returns a store over the named database of client.
func New(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(dbName)}
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// --- MongoDB document types ---

type participantDoc struct {
	ID          string  `bson:"_id"`
	Address     string  `bson:"address"`
	DisplayName *string `bson:"display_name,omitempty"`
	Kind        string  `bson:"type"`
	Description *string `bson:"description,omitempty"`
}

type memberDoc struct {
	ParticipantID string    `bson:"participant_id"`
	JoinedAt      time.Time `bson:"joined_at"`
}

type conversationDoc struct {
	ID           string      `bson:"_id"`
	ExternalID   string      `bson:"external_id"`
	Topic        *string     `bson:"topic,omitempty"`
	StartedAt    time.Time   `bson:"started_at"`
	Participants []memberDoc `bson:"participants"`
	Summary      *string     `bson:"summary,omitempty"`
	Context      *string     `bson:"context,omitempty"`
}

type messageDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	SenderID       string    `bson:"sender_id"`
	Channel        string    `bson:"channel"`
	ExternalID     *string   `bson:"external_id,omitempty"`
	SentAt         time.Time `bson:"sent_at"`
	Content        string    `bson:"content"`
	Summary        *string   `bson:"summary,omitempty"`
	Context        *string   `bson:"context,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
}

type summaryDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	MessageIDs     []string  `bson:"message_ids"`
	Summary        string    `bson:"summary"`
	Context        *string   `bson:"context,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
	FromDate       time.Time `bson:"from_date"`
	ToDate         time.Time `bson:"to_date"`
}

// --- Collection accessors ---

func (s *MongoStore) participants() *mongo.Collection  { return s.db.Collection(collParticipants) }
func (s *MongoStore) conversations() *mongo.Collection { return s.db.Collection(collConversations) }
func (s *MongoStore) messages() *mongo.Collection      { return s.db.Collection(collMessages) }
func (s *MongoStore) summaries() *mongo.Collection     { return s.db.Collection(collSummaries) }

// --- UUID helpers ---

func uuidToStr(id uuid.UUID) string { return id.String() }
func strToUUID(s string) uuid.UUID  { u, _ := uuid.Parse(s); return u }

func uuidsToStrs(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// --- Participants ---

func (s *MongoStore) UpsertParticipant(ctx context.Context, p registrystore.ParticipantUpsert) (*model.Participant, error) {
	filter := bson.M{"address": p.Address}
	onInsert := bson.M{"_id": uuidToStr(p.ID), "address": p.Address}
	set := bson.M{
		"display_name": p.DisplayName,
		"description":  p.Description,
	}
	if p.Kind != "" {
		set["type"] = string(p.Kind)
	} else {
		onInsert["type"] = string(model.ParticipantKindHuman)
	}
	update := bson.M{"$setOnInsert": onInsert, "$set": set}
	var doc participantDoc
	if err := s.upsert(ctx, s.participants(), filter, update, &doc); err != nil {
		return nil, fmt.Errorf("failed to upsert participant: %w", err)
	}
	return toParticipant(doc), nil
}

func (s *MongoStore) GetParticipant(ctx context.Context, id uuid.UUID) (*model.Participant, error) {
	var doc participantDoc
	if err := s.participants().FindOne(ctx, bson.M{"_id": uuidToStr(id)}).Decode(&doc); err != nil {
		return nil, notFound(err, "participant", id.String())
	}
	return toParticipant(doc), nil
}

func (s *MongoStore) FindParticipantByAddress(ctx context.Context, address string) (*model.Participant, error) {
	var doc participantDoc
	if err := s.participants().FindOne(ctx, bson.M{"address": address}).Decode(&doc); err != nil {
		return nil, notFound(err, "participant", address)
	}
	return toParticipant(doc), nil
}

func (s *MongoStore) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "address", Value: 1}})
	return s.findParticipants(ctx, bson.M{}, opts)
}

func (s *MongoStore) GetParticipantsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Participant, error) {
	if len(ids) == 0 {
		return []model.Participant{}, nil
	}
	return s.findParticipants(ctx, bson.M{"_id": bson.M{"$in": uuidsToStrs(ids)}}, options.Find())
}

func (s *MongoStore) findParticipants(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]model.Participant, error) {
	cursor, err := s.participants().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find participants: %w", err)
	}
	var docs []participantDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	out := make([]model.Participant, len(docs))
	for i, d := range docs {
		out[i] = *toParticipant(d)
	}
	return out, nil
}

// --- Conversations ---

func (s *MongoStore) UpsertConversation(ctx context.Context, c registrystore.ConversationUpsert) (*model.Conversation, error) {
	filter := bson.M{"external_id": c.ExternalID}
	onInsert := bson.M{
		"_id":          uuidToStr(c.ID),
		"external_id":  c.ExternalID,
		"started_at":   c.StartedAt,
		"participants": bson.A{},
	}
	if c.Topic != nil {
		onInsert["topic"] = *c.Topic
	}
	var doc conversationDoc
	if err := s.upsert(ctx, s.conversations(), filter, bson.M{"$setOnInsert": onInsert}, &doc); err != nil {
		return nil, fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return toConversation(doc), nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	var doc conversationDoc
	if err := s.conversations().FindOne(ctx, bson.M{"_id": uuidToStr(id)}).Decode(&doc); err != nil {
		return nil, notFound(err, "conversation", id.String())
	}
	return toConversation(doc), nil
}

func (s *MongoStore) FindConversationByExternalID(ctx context.Context, externalID string) (*model.Conversation, error) {
	var doc conversationDoc
	if err := s.conversations().FindOne(ctx, bson.M{"external_id": externalID}).Decode(&doc); err != nil {
		return nil, notFound(err, "conversation", externalID)
	}
	return toConversation(doc), nil
}

func (s *MongoStore) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.conversations().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	out := make([]model.Conversation, len(docs))
	for i, d := range docs {
		out[i] = *toConversation(d)
	}
	return out, nil
}

func (s *MongoStore) UpdateConversationMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Conversation, error) {
	var doc conversationDoc
	err := s.conversations().FindOneAndUpdate(ctx,
		bson.M{"_id": uuidToStr(id)},
		bson.M{"$set": metadataSet(update)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err, "conversation", id.String())
	}
	return toConversation(doc), nil
}

func (s *MongoStore) AddConversationParticipant(ctx context.Context, conversationID uuid.UUID, participantID uuid.UUID, joinedAt time.Time) (bool, error) {
	pid := uuidToStr(participantID)
	res, err := s.conversations().UpdateOne(ctx,
		bson.M{
			"_id":                         uuidToStr(conversationID),
			"participants.participant_id": bson.M{"$ne": pid},
		},
		bson.M{"$push": bson.M{"participants": memberDoc{ParticipantID: pid, JoinedAt: joinedAt}}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to add conversation participant: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// --- Messages ---

func (s *MongoStore) InsertMessage(ctx context.Context, m model.Message) error {
	doc := messageDoc{
		ID:             uuidToStr(m.ID),
		ConversationID: uuidToStr(m.ConversationID),
		SenderID:       uuidToStr(m.SenderID),
		Channel:        m.Channel,
		ExternalID:     m.ExternalID,
		SentAt:         m.SentAt,
		Content:        m.Content,
		Summary:        m.Summary,
		Context:        m.Context,
		CreatedAt:      m.CreatedAt,
	}
	if _, err := s.messages().InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *MongoStore) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	var doc messageDoc
	if err := s.messages().FindOne(ctx, bson.M{"_id": uuidToStr(id)}).Decode(&doc); err != nil {
		return nil, notFound(err, "message", id.String())
	}
	return toMessage(doc), nil
}

func (s *MongoStore) ListMessages(ctx context.Context) ([]model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: -1}, {Key: "created_at", Value: -1}})
	return s.findMessages(ctx, bson.M{}, opts)
}

func (s *MongoStore) ListConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}, {Key: "created_at", Value: 1}})
	return s.findMessages(ctx, bson.M{"conversation_id": uuidToStr(conversationID)}, opts)
}

func (s *MongoStore) GetMessagesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Message, error) {
	if len(ids) == 0 {
		return []model.Message{}, nil
	}
	return s.findMessages(ctx, bson.M{"_id": bson.M{"$in": uuidsToStrs(ids)}}, options.Find())
}

func (s *MongoStore) findMessages(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]model.Message, error) {
	cursor, err := s.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	out := make([]model.Message, len(docs))
	for i, d := range docs {
		out[i] = *toMessage(d)
	}
	return out, nil
}

func (s *MongoStore) UpdateMessageMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Message, error) {
	var doc messageDoc
	err := s.messages().FindOneAndUpdate(ctx,
		bson.M{"_id": uuidToStr(id)},
		bson.M{"$set": metadataSet(update)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err, "message", id.String())
	}
	return toMessage(doc), nil
}

// --- Message summaries ---

func (s *MongoStore) InsertMessageSummary(ctx context.Context, sum model.MessageSummary) error {
	doc := summaryDoc{
		ID:             uuidToStr(sum.ID),
		ConversationID: uuidToStr(sum.ConversationID),
		MessageIDs:     uuidsToStrs(sum.MessageIDs),
		Summary:        sum.Summary,
		Context:        sum.Context,
		CreatedAt:      sum.CreatedAt,
		FromDate:       sum.FromDate,
		ToDate:         sum.ToDate,
	}
	if _, err := s.summaries().InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert message summary: %w", err)
	}
	return nil
}

func (s *MongoStore) ListMessageSummaries(ctx context.Context, conversationID uuid.UUID) ([]model.MessageSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "from_date", Value: 1}, {Key: "created_at", Value: 1}})
	cursor, err := s.summaries().Find(ctx, bson.M{"conversation_id": uuidToStr(conversationID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list message summaries: %w", err)
	}
	var docs []summaryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode message summaries: %w", err)
	}
	out := make([]model.MessageSummary, len(docs))
	for i, d := range docs {
		ids := make([]uuid.UUID, len(d.MessageIDs))
		for j, id := range d.MessageIDs {
			ids[j] = strToUUID(id)
		}
		out[i] = model.MessageSummary{
			ID:             strToUUID(d.ID),
			ConversationID: strToUUID(d.ConversationID),
			MessageIDs:     ids,
			Summary:        d.Summary,
			Context:        d.Context,
			CreatedAt:      d.CreatedAt.UTC(),
			FromDate:       d.FromDate.UTC(),
			ToDate:         d.ToDate.UTC(),
		}
	}
	return out, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// --- helpers ---

// upsert runs an atomic find-or-create and decodes the resulting document.
// Two concurrent upserts on the same key can both miss and race to insert;
// the loser gets a duplicate key error and finds the winner's document on
// the second attempt.
func (s *MongoStore) upsert(ctx context.Context, coll *mongo.Collection, filter, update bson.M, out any) error {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
	if mongo.IsDuplicateKeyError(err) {
		log.Debug("Retrying upsert after duplicate key", "collection", coll.Name())
		err = coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &registrystore.InvariantError{Op: "upsert " + coll.Name(), Message: "no document returned"}
	}
	return err
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &registrystore.NotFoundError{Resource: resource, ID: id}
	}
	return fmt.Errorf("failed to load %s: %w", resource, err)
}

func metadataSet(update model.MetadataUpdate) bson.M {
	set := bson.M{}
	if update.Summary != nil {
		set["summary"] = *update.Summary
	}
	if update.Context != nil {
		set["context"] = *update.Context
	}
	return set
}

func toParticipant(d participantDoc) *model.Participant {
	return &model.Participant{
		ID:          strToUUID(d.ID),
		Address:     d.Address,
		DisplayName: d.DisplayName,
		Kind:        model.ParticipantKind(d.Kind),
		Description: d.Description,
	}
}

func toConversation(d conversationDoc) *model.Conversation {
	members := make([]model.ConversationParticipant, len(d.Participants))
	for i, m := range d.Participants {
		members[i] = model.ConversationParticipant{
			ConversationID: strToUUID(d.ID),
			ParticipantID:  strToUUID(m.ParticipantID),
			JoinedAt:       m.JoinedAt.UTC(),
		}
	}
	return &model.Conversation{
		ID:           strToUUID(d.ID),
		ExternalID:   d.ExternalID,
		Topic:        d.Topic,
		StartedAt:    d.StartedAt.UTC(),
		Participants: members,
		Summary:      d.Summary,
		Context:      d.Context,
	}
}

func toMessage(d messageDoc) *model.Message {
	return &model.Message{
		ID:             strToUUID(d.ID),
		ConversationID: strToUUID(d.ConversationID),
		SenderID:       strToUUID(d.SenderID),
		Channel:        d.Channel,
		ExternalID:     d.ExternalID,
		SentAt:         d.SentAt.UTC(),
		Content:        d.Content,
		Summary:        d.Summary,
		Context:        d.Context,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}
