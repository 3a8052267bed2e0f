package memory

import (
	"context"
	"time"
)

// DefaultSessionID groups records stored without an explicit session.
const DefaultSessionID = "default"

// Record is a single stored memory.
//
// Timestamp is set once when the record is first stored. Re-storing the same
// ID overwrites everything else and refreshes UpdatedAt; TagMemories only
// touches Tags and UpdatedAt.
type Record struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	Tags        []string  `json:"tags"`
	Context     Metadata  `json:"context"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ContentHash string    `json:"content_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Query filters a range scan over stored records.
// Zero values mean "no filter". Results are ordered by Timestamp, newest
// first unless Ascending is set.
type Query struct {
	SessionID string

	// Contains is a case-sensitive substring match on Content.
	Contains string

	// WithEmbedding keeps only records that have an embedding.
	WithEmbedding bool

	// OmitEmbedding skips loading embeddings (Record.Embedding stays nil).
	OmitEmbedding bool

	Since     time.Time
	Ascending bool
	Limit     int
}

// RecordStore is the durable storage backend.
// Implementations: sqlstore.Store (SQLite, PostgreSQL).
//
// Every method must make sure the schema exists before touching data.
// Failures are reported as *StorageError; GetByID and GetByHash return
// ErrNotFound when nothing matches.
type RecordStore interface {
	EnsureSchema(ctx context.Context) error
	InsertOrReplace(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByHash(ctx context.Context, hash string) (*Record, error)

	// DeleteByID reports whether a record was removed.
	DeleteByID(ctx context.Context, id string) (bool, error)

	Query(ctx context.Context, q Query) ([]*Record, error)
	Close() error
}

// KeyValueCache is an ephemeral TTL cache shared between requests.
// Implementations: ristretto.Cache (in-process), redis.Cache (shared).
//
// Get reports a miss with ok == false and a nil error.
type KeyValueCache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Embedder converts text to embedding vectors.
// Implementations: fallback.Provider (wraps a primary with a deterministic
// fallback), openai.Embedder, onnx.Embedder.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Generator produces text from a prompt. It stands in for the language
// model behind the orchestration layer and is only used for summaries.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
