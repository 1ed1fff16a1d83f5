// Package gormstore implements the message store on SQL databases through
// GORM. It registers the "postgres" and "sqlite" store plugins.
//
// Conversation membership lives in the conversation_participants join table
// whose (conversation_id, participant_id) primary key makes the conditional
// append a single INSERT ... ON CONFLICT DO NOTHING.
package gormstore

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
	"github.com/chirino/unimsg/internal/telemetry"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func init() {
	for _, name := range []string{config.DatastorePostgres, config.DatastoreSQLite} {
		registrystore.Register(registrystore.Plugin{
			Name: name,
			Loader: func(ctx context.Context) (registrystore.MessageStore, error) {
				cfg := config.FromContext(ctx)
				db, err := Open(cfg)
				if err != nil {
					return nil, err
				}
				store := New(db)
				store.watchPool(cfg)
				return store, nil
			},
		})
	}

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqlMigrator{}})
}

// Open connects to the database named by cfg.DBURL using the dialect of
// cfg.DatastoreType.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatastoreType {
	case config.DatastorePostgres:
		dialector = postgres.Open(cfg.DBURL)
	case config.DatastoreSQLite:
		dialector = sqlite.Open(cfg.DBURL)
	default:
		return nil, fmt.Errorf("gormstore: unsupported datastore %q", cfg.DatastoreType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// Referential integrity is enforced by the aggregator, as with the document store.
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: logger.New(log.StandardLog(log.StandardLogOptions{ForceLevel: log.WarnLevel}), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DatastoreType, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	if cfg.DatastoreType == config.DatastoreSQLite {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	return db, nil
}

// Migrate creates or updates the tables and indexes.
func Migrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&model.Participant{},
		&model.Conversation{},
		&model.ConversationParticipant{},
		&model.Message{},
		&model.MessageSummary{},
	)
	if err != nil {
		return fmt.Errorf("migration: failed to migrate schema: %w", err)
	}
	return nil
}

type sqlMigrator struct{}

func (m *sqlMigrator) Name() string { return "sql-schema" }
func (m *sqlMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != config.DatastorePostgres && cfg.DatastoreType != config.DatastoreSQLite {
		return nil
	}
	log.Info("Running migration", "name", m.Name(), "datastore", cfg.DatastoreType)
	db, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("SQL schema migration complete", "datastore", cfg.DatastoreType)
	return nil
}

// SQLStore implements MessageStore using GORM.
type SQLStore struct {
	db       *gorm.DB
	stopPool context.CancelFunc
}

// New returns a store over db. The schema must already exist; see Migrate.
func New(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// watchPool periodically publishes the connection pool gauges.
func (s *SQLStore) watchPool(cfg *config.Config) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	if telemetry.DBPoolMaxConnections != nil {
		telemetry.DBPoolMaxConnections.Set(float64(sqlDB.Stats().MaxOpenConnections))
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopPool = cancel
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if telemetry.DBPoolOpenConnections != nil {
					telemetry.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
				}
			}
		}
	}()
	log.Debug("Watching SQL connection pool", "datastore", cfg.DatastoreType)
}

func (s *SQLStore) withMembers(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("joined_at ASC, participant_id ASC")
	})
}

// --- Participants ---

func (s *SQLStore) UpsertParticipant(ctx context.Context, p registrystore.ParticipantUpsert) (*model.Participant, error) {
	row := model.Participant{
		ID:          p.ID,
		Address:     p.Address,
		DisplayName: p.DisplayName,
		Kind:        p.Kind,
		Description: p.Description,
	}
	updates := []string{"display_name", "description"}
	if p.Kind != "" {
		updates = append(updates, "kind")
	} else {
		row.Kind = model.ParticipantKindHuman
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert participant: %w", err)
	}
	got, err := s.FindParticipantByAddress(ctx, p.Address)
	if err != nil {
		var nf *registrystore.NotFoundError
		if errors.As(err, &nf) {
			return nil, &registrystore.InvariantError{Op: "upsert participants", Message: "no row after upsert"}
		}
		return nil, err
	}
	return got, nil
}

func (s *SQLStore) GetParticipant(ctx context.Context, id uuid.UUID) (*model.Participant, error) {
	var row model.Participant
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, "participant", id.String())
	}
	return &row, nil
}

func (s *SQLStore) FindParticipantByAddress(ctx context.Context, address string) (*model.Participant, error) {
	var row model.Participant
	if err := s.db.WithContext(ctx).Where("address = ?", address).Take(&row).Error; err != nil {
		return nil, notFound(err, "participant", address)
	}
	return &row, nil
}

func (s *SQLStore) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	rows := []model.Participant{}
	if err := s.db.WithContext(ctx).Order("address ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return rows, nil
}

func (s *SQLStore) GetParticipantsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Participant, error) {
	rows := []model.Participant{}
	if len(ids) == 0 {
		return rows, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find participants: %w", err)
	}
	return rows, nil
}

// --- Conversations ---

func (s *SQLStore) UpsertConversation(ctx context.Context, c registrystore.ConversationUpsert) (*model.Conversation, error) {
	row := model.Conversation{
		ID:         c.ID,
		ExternalID: c.ExternalID,
		Topic:      c.Topic,
		StartedAt:  c.StartedAt,
	}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert conversation: %w", err)
	}
	got, err := s.FindConversationByExternalID(ctx, c.ExternalID)
	if err != nil {
		var nf *registrystore.NotFoundError
		if errors.As(err, &nf) {
			return nil, &registrystore.InvariantError{Op: "upsert conversations", Message: "no row after upsert"}
		}
		return nil, err
	}
	return got, nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	var row model.Conversation
	if err := s.withMembers(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, "conversation", id.String())
	}
	return normalizeConversation(&row), nil
}

func (s *SQLStore) FindConversationByExternalID(ctx context.Context, externalID string) (*model.Conversation, error) {
	var row model.Conversation
	if err := s.withMembers(ctx).Where("external_id = ?", externalID).Take(&row).Error; err != nil {
		return nil, notFound(err, "conversation", externalID)
	}
	return normalizeConversation(&row), nil
}

func (s *SQLStore) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	rows := []model.Conversation{}
	if err := s.withMembers(ctx).Order("started_at DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	for i := range rows {
		normalizeConversation(&rows[i])
	}
	return rows, nil
}

func (s *SQLStore) UpdateConversationMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Conversation, error) {
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).Updates(metadataColumns(update))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: id.String()}
	}
	return s.GetConversation(ctx, id)
}

// AddConversationParticipant relies on conversations never being deleted:
// once the existence check passes the conversation stays, so the check and
// the conflict-ignoring insert need no transaction.
func (s *SQLStore) AddConversationParticipant(ctx context.Context, conversationID uuid.UUID, participantID uuid.UUID, joinedAt time.Time) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	if count == 0 {
		return false, nil
	}

	row := model.ConversationParticipant{
		ConversationID: conversationID,
		ParticipantID:  participantID,
		JoinedAt:       joinedAt,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, nil
		}
		return false, fmt.Errorf("failed to add conversation participant: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// --- Messages ---

func (s *SQLStore) InsertMessage(ctx context.Context, m model.Message) error {
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return &registrystore.InvariantError{Op: "insert message", Message: "duplicate message id " + m.ID.String()}
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLStore) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	var row model.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, "message", id.String())
	}
	normalizeMessage(&row)
	return &row, nil
}

func (s *SQLStore) ListMessages(ctx context.Context) ([]model.Message, error) {
	return s.findMessages(s.db.WithContext(ctx).Order("sent_at DESC, created_at DESC"))
}

func (s *SQLStore) ListConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	return s.findMessages(s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at ASC, created_at ASC"))
}

func (s *SQLStore) GetMessagesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Message, error) {
	if len(ids) == 0 {
		return []model.Message{}, nil
	}
	return s.findMessages(s.db.WithContext(ctx).Where("id IN ?", ids))
}

func (s *SQLStore) findMessages(q *gorm.DB) ([]model.Message, error) {
	rows := []model.Message{}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	for i := range rows {
		normalizeMessage(&rows[i])
	}
	return rows, nil
}

func (s *SQLStore) UpdateMessageMetadata(ctx context.Context, id uuid.UUID, update model.MetadataUpdate) (*model.Message, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Updates(metadataColumns(update))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: id.String()}
	}
	return s.GetMessage(ctx, id)
}

// --- Message summaries ---

func (s *SQLStore) InsertMessageSummary(ctx context.Context, sum model.MessageSummary) error {
	if err := s.db.WithContext(ctx).Create(&sum).Error; err != nil {
		if isUniqueViolation(err) {
			return &registrystore.InvariantError{Op: "insert message summary", Message: "duplicate summary id " + sum.ID.String()}
		}
		return fmt.Errorf("failed to insert message summary: %w", err)
	}
	return nil
}

func (s *SQLStore) ListMessageSummaries(ctx context.Context, conversationID uuid.UUID) ([]model.MessageSummary, error) {
	rows := []model.MessageSummary{}
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("from_date ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list message summaries: %w", err)
	}
	for i := range rows {
		rows[i].CreatedAt = rows[i].CreatedAt.UTC()
		rows[i].FromDate = rows[i].FromDate.UTC()
		rows[i].ToDate = rows[i].ToDate.UTC()
	}
	return rows, nil
}

func (s *SQLStore) Close(ctx context.Context) error {
	if s.stopPool != nil {
		s.stopPool()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- helpers ---

func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &registrystore.NotFoundError{Resource: resource, ID: id}
	}
	return fmt.Errorf("failed to load %s: %w", resource, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func metadataColumns(update model.MetadataUpdate) map[string]any {
	cols := map[string]any{}
	if update.Summary != nil {
		cols["summary"] = *update.Summary
	}
	if update.Context != nil {
		cols["context"] = *update.Context
	}
	return cols
}

func normalizeConversation(c *model.Conversation) *model.Conversation {
	c.StartedAt = c.StartedAt.UTC()
	if c.Participants == nil {
		c.Participants = []model.ConversationParticipant{}
	}
	for i := range c.Participants {
		c.Participants[i].JoinedAt = c.Participants[i].JoinedAt.UTC()
	}
	return c
}

func normalizeMessage(m *model.Message) {
	m.SentAt = m.SentAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
}
