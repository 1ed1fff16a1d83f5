// Package aggregator keeps participants, conversations and messages mutually
// consistent on top of a store that offers no multi-document transactions.
//
// The only atomic steps are the two natural-key upserts and the conditional
// membership append, both delegated to the store. Every other operation is a
// sequence of independent store calls.
package aggregator

import (
	"time"

	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/google/uuid"
)

// Service implements the ingestion and read-assembly operations. It holds no
// mutable state and is safe for concurrent use.
type Service struct {
	store registrystore.MessageStore
	now   func() time.Time
	newID func() uuid.UUID
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the wall clock used for join, start and creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the generator of internal ids.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *Service) { s.newID = newID }
}

// New returns a Service backed by store.
func New(store registrystore.MessageStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		newID: uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) timestamp() time.Time {
	return NormalizeTime(s.now())
}

// NormalizeTime converts t to UTC with millisecond precision, the finest
// resolution every supported store round-trips.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
