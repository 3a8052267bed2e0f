package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager is the public memory API. It composes a RecordStore, an Embedder
// and an optional KeyValueCache, all injected at construction.
//
// Manager holds no per-request state; every method is one independent
// request against the shared store and cache.
type Manager struct {
	store    RecordStore
	embedder Embedder
	cache    *ReadThrough
	gen      Generator
	config   Config
	log      logrus.FieldLogger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig overrides the default tunables. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = cfg.withDefaults()
	}
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithGenerator enables model-written session summaries.
func WithGenerator(g Generator) Option {
	return func(m *Manager) {
		m.gen = g
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager. cache may be nil to run uncached.
func NewManager(store RecordStore, embedder Embedder, cache KeyValueCache, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: record store is required", ErrInvalidArgument)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidArgument)
	}

	m := &Manager{
		store:    store,
		embedder: embedder,
		config:   DefaultConfig(),
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "memory")
	m.cache = NewReadThrough(cache, m.log)
	return m, nil
}

// Status is the outcome of a store call.
type Status string

const (
	StatusStored    Status = "stored"
	StatusDuplicate Status = "duplicate"
)

// StoreInput is the argument to Store.
type StoreInput struct {
	Content   string   `json:"content"`
	Tags      []string `json:"tags,omitempty"`
	Context   Metadata `json:"context,omitempty"`
	SessionID string   `json:"session_id,omitempty"`

	// MemoryID overwrites the record with this ID. Empty mints a new one.
	MemoryID string `json:"memory_id,omitempty"`
}

// StoreResult describes what Store did. A duplicate is a success carrying
// the ID of the record that already holds the content.
type StoreResult struct {
	MemoryID            string `json:"memory_id,omitempty"`
	Status              Status `json:"status"`
	ExistingID          string `json:"existing_id,omitempty"`
	EmbeddingDimensions int    `json:"embedding_dimensions,omitempty"`
	ContentPreview      string `json:"content_preview,omitempty"`
}

// Store persists content unless a record with the same content hash exists.
//
// Two concurrent stores of equal content can both pass the duplicate check;
// deduplication is best effort.
func (m *Manager) Store(ctx context.Context, in StoreInput) (*StoreResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, invalidArg("content", "is required")
	}
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = m.config.DefaultSessionID
	}

	existing, err := m.store.GetByHash(ctx, ContentHash(in.Content))
	switch {
	case err == nil:
		m.log.WithFields(logrus.Fields{
			"existing_id": existing.ID,
			"session_id":  sessionID,
		}).Info("duplicate content, not stored")
		return &StoreResult{Status: StatusDuplicate, ExistingID: existing.ID}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, WrapStorage("store", err)
	}

	rec := newRecord(in, sessionID, m.now().UTC())
	if in.MemoryID != "" {
		prev, err := m.store.GetByID(ctx, in.MemoryID)
		switch {
		case err == nil:
			rec.Timestamp = prev.Timestamp
		case !errors.Is(err, ErrNotFound):
			return nil, WrapStorage("store", err)
		}
	}
	rec.Embedding = m.embed(ctx, rec.Content)

	if err := m.store.InsertOrReplace(ctx, rec); err != nil {
		return nil, WrapStorage("store", err)
	}

	m.cache.Remember(ctx, projectionKey(rec.ID), rec.projection(), m.config.ProjectionTTL)
	m.cache.Evict(ctx, recordKey(rec.ID))
	m.invalidateStats(ctx)

	m.log.WithFields(logrus.Fields{
		"memory_id":  rec.ID,
		"session_id": rec.SessionID,
		"dimensions": len(rec.Embedding),
	}).Info("memory stored")

	return &StoreResult{
		MemoryID:            rec.ID,
		Status:              StatusStored,
		EmbeddingDimensions: len(rec.Embedding),
		ContentPreview:      preview(rec.Content, m.config.PreviewLength),
	}, nil
}

// Retrieve returns the record with the given ID.
func (m *Manager) Retrieve(ctx context.Context, id string) (*Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidArg("memory_id", "is required")
	}

	rec, err := Fetch(ctx, m.cache, recordKey(id), m.config.RecordTTL, func(ctx context.Context) (*Record, error) {
		return m.store.GetByID(ctx, id)
	})
	if err != nil {
		return nil, m.lookupError("retrieve", id, err)
	}
	return rec, nil
}

// Delete removes a record permanently and evicts its cache entries.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidArg("memory_id", "is required")
	}

	removed, err := m.store.DeleteByID(ctx, id)
	if err != nil {
		return WrapStorage("delete", err)
	}
	if !removed {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}

	m.cache.Evict(ctx, projectionKey(id), recordKey(id))
	m.invalidateStats(ctx)

	m.log.WithField("memory_id", id).Info("memory deleted")
	return nil
}

// TagResult is the tag set after TagMemories.
type TagResult struct {
	MemoryID string   `json:"memory_id"`
	Tags     []string `json:"tags"`
}

// TagMemories adds tags to a record. Existing tags keep their order; tags
// already present are not repeated.
func (m *Manager) TagMemories(ctx context.Context, id string, tags []string) (*TagResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidArg("memory_id", "is required")
	}
	added := cleanTags(tags)
	if len(added) == 0 {
		return nil, invalidArg("tags", "must contain at least one non-empty tag")
	}

	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, m.lookupError("tag", id, err)
	}

	rec.Tags = mergeTags(rec.Tags, added)
	rec.UpdatedAt = m.now().UTC()
	if err := m.store.InsertOrReplace(ctx, rec); err != nil {
		return nil, WrapStorage("tag", err)
	}

	m.cache.Evict(ctx, recordKey(id))
	m.cache.Remember(ctx, projectionKey(id), rec.projection(), m.config.ProjectionTTL)
	m.invalidateStats(ctx)

	return &TagResult{MemoryID: id, Tags: rec.Tags}, nil
}

// embed returns nil when the embedder fails; the record is still stored.
func (m *Manager) embed(ctx context.Context, text string) []float32 {
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.log.WithError(err).Warn("embedding failed, continuing without vector")
		return nil
	}
	if len(vec) == 0 {
		return nil
	}
	return vec
}

func (m *Manager) invalidateStats(ctx context.Context) {
	m.cache.EvictPrefix(ctx, statsPrefix)
}

func (m *Manager) lookupError(op, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return WrapStorage(op, err)
}
