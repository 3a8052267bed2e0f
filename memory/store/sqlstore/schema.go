package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/becomeliminal/nim-memory/memory"
)

// All columns are TEXT so one schema serves both dialects. Timestamps are
// fixed-width UTC so lexical order is chronological order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id           TEXT PRIMARY KEY,
		content      TEXT NOT NULL,
		"timestamp"  TEXT NOT NULL,
		session_id   TEXT NOT NULL DEFAULT 'default',
		tags         TEXT NOT NULL DEFAULT '[]',
		context      TEXT NOT NULL DEFAULT '{}',
		embedding    TEXT,
		content_hash TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_session_time ON memories (session_id, "timestamp")`,
	`CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories (content_hash)`,
}

const columns = `id, content, "timestamp", session_id, tags, context, embedding, content_hash, updated_at`

const columnsNoEmbedding = `id, content, "timestamp", session_id, tags, context, NULL AS embedding, content_hash, updated_at`

const upsertSQL = `INSERT INTO memories (id, content, "timestamp", session_id, tags, context, embedding, content_hash, updated_at)
VALUES (:id, :content, :timestamp, :session_id, :tags, :context, :embedding, :content_hash, :updated_at)
ON CONFLICT (id) DO UPDATE SET
	content      = excluded.content,
	"timestamp"  = excluded."timestamp",
	session_id   = excluded.session_id,
	tags         = excluded.tags,
	context      = excluded.context,
	embedding    = excluded.embedding,
	content_hash = excluded.content_hash,
	updated_at   = excluded.updated_at`

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type row struct {
	ID          string         `db:"id"`
	Content     string         `db:"content"`
	Timestamp   string         `db:"timestamp"`
	SessionID   string         `db:"session_id"`
	Tags        string         `db:"tags"`
	Context     string         `db:"context"`
	Embedding   sql.NullString `db:"embedding"`
	ContentHash string         `db:"content_hash"`
	UpdatedAt   string         `db:"updated_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func toRow(rec *memory.Record) (*row, error) {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	r := &row{
		ID:          rec.ID,
		Content:     rec.Content,
		Timestamp:   formatTime(rec.Timestamp),
		SessionID:   rec.SessionID,
		Tags:        string(tagsJSON),
		Context:     string(rec.Context.Raw()),
		ContentHash: rec.ContentHash,
		UpdatedAt:   formatTime(rec.UpdatedAt),
	}
	if len(rec.Embedding) > 0 {
		vec, err := json.Marshal(rec.Embedding)
		if err != nil {
			return nil, fmt.Errorf("encode embedding: %w", err)
		}
		r.Embedding = sql.NullString{String: string(vec), Valid: true}
	}
	return r, nil
}

func (r *row) record() (*memory.Record, error) {
	rec := &memory.Record{
		ID:          r.ID,
		Content:     r.Content,
		SessionID:   r.SessionID,
		ContentHash: r.ContentHash,
	}

	var err error
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, r.Timestamp); err != nil {
		return nil, fmt.Errorf("record %s: timestamp: %w", r.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("record %s: updated_at: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Tags), &rec.Tags); err != nil {
		return nil, fmt.Errorf("record %s: tags: %w", r.ID, err)
	}
	if rec.Context, err = memory.ParseMetadata([]byte(r.Context)); err != nil {
		return nil, fmt.Errorf("record %s: context: %w", r.ID, err)
	}
	if r.Embedding.Valid && r.Embedding.String != "" {
		if err := json.Unmarshal([]byte(r.Embedding.String), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("record %s: embedding: %w", r.ID, err)
		}
	}
	return rec, nil
}

// buildQuery renders q for the store's dialect.
func (s *Store) buildQuery(q memory.Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Contains != "" {
		if s.driver == DriverPostgres {
			where = append(where, "strpos(content, ?) > 0")
		} else {
			where = append(where, "instr(content, ?) > 0")
		}
		args = append(args, q.Contains)
	}
	if q.WithEmbedding {
		where = append(where, "embedding IS NOT NULL")
	}
	if !q.Since.IsZero() {
		where = append(where, `"timestamp" >= ?`)
		args = append(args, formatTime(q.Since))
	}

	cols := columns
	if q.OmitEmbedding && !q.WithEmbedding {
		cols = columnsNoEmbedding
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM memories", cols)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if q.Ascending {
		b.WriteString(` ORDER BY "timestamp" ASC, id ASC`)
	} else {
		b.WriteString(` ORDER BY "timestamp" DESC, id ASC`)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return s.db.Rebind(b.String()), args
}
