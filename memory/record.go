package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// projection is the lightweight view cached under memory:<id> on every
// fresh store.
type projection struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Tags      []string  `json:"tags"`
}

func newRecord(in StoreInput, sessionID string, now time.Time) *Record {
	id := in.MemoryID
	if id == "" {
		id = uuid.New().String()
	}

	return &Record{
		ID:          id,
		Content:     in.Content,
		Timestamp:   now,
		SessionID:   sessionID,
		Tags:        cleanTags(in.Tags),
		Context:     in.Context,
		ContentHash: ContentHash(in.Content),
		UpdatedAt:   now,
	}
}

func (r *Record) projection() projection {
	return projection{
		ID:        r.ID,
		Content:   r.Content,
		Timestamp: r.Timestamp,
		SessionID: r.SessionID,
		Tags:      r.Tags,
	}
}

// mergeTags returns existing followed by the new tags not already present.
func mergeTags(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, group := range [][]string{existing, added} {
		for _, tag := range group {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

func cleanTags(tags []string) []string {
	return mergeTags(nil, tags)
}

// preview returns the first n runes of s.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// truncate truncates a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
