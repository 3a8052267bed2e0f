package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionInfo summarises the records sharing a session ID.
type SessionInfo struct {
	SessionID     string    `json:"session_id"`
	MemoryCount   int       `json:"memory_count"`
	FirstActivity time.Time `json:"first_activity"`
	LastActivity  time.Time `json:"last_activity"`
	DurationDays  int       `json:"duration_days"`
}

// ListSessions returns one entry per session, most recently active first.
func (m *Manager) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions, err := Fetch(ctx, m.cache, statsKey("sessions"), m.config.StatsTTL, m.loadSessions)
	if err != nil {
		return nil, WrapStorage("list_sessions", err)
	}
	return sessions, nil
}

func (m *Manager) loadSessions(ctx context.Context) ([]*SessionInfo, error) {
	recs, err := m.store.Query(ctx, Query{OmitEmbedding: true})
	if err != nil {
		return nil, err
	}

	bySession := make(map[string]*SessionInfo)
	for _, rec := range recs {
		info, ok := bySession[rec.SessionID]
		if !ok {
			info = &SessionInfo{
				SessionID:     rec.SessionID,
				FirstActivity: rec.Timestamp,
				LastActivity:  rec.Timestamp,
			}
			bySession[rec.SessionID] = info
		}
		info.MemoryCount++
		if rec.Timestamp.Before(info.FirstActivity) {
			info.FirstActivity = rec.Timestamp
		}
		if rec.Timestamp.After(info.LastActivity) {
			info.LastActivity = rec.Timestamp
		}
	}

	sessions := make([]*SessionInfo, 0, len(bySession))
	for _, info := range bySession {
		info.DurationDays = int(math.Ceil(info.LastActivity.Sub(info.FirstActivity).Hours() / 24))
		sessions = append(sessions, info)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].LastActivity.Equal(sessions[j].LastActivity) {
			return sessions[i].LastActivity.After(sessions[j].LastActivity)
		}
		return sessions[i].SessionID < sessions[j].SessionID
	})
	return sessions, nil
}

// ImportEntry is one memory in a bulk import.
type ImportEntry struct {
	Content  string   `json:"content"`
	Tags     []string `json:"tags,omitempty"`
	Context  Metadata `json:"context,omitempty"`
	MemoryID string   `json:"memory_id,omitempty"`
}

// ImportItemResult is the outcome of one entry.
type ImportItemResult struct {
	Index    int    `json:"index"`
	Success  bool   `json:"success"`
	MemoryID string `json:"memory_id,omitempty"`
	Status   Status `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BulkImportResult collects every entry's outcome.
type BulkImportResult struct {
	SessionID string             `json:"session_id"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []ImportItemResult `json:"results"`
}

// BulkImport stores each entry independently into one session. A failing
// entry is recorded and the batch carries on; duplicates count as
// successes. An empty sessionID mints import_<yyyymmdd_hhmmss>.
func (m *Manager) BulkImport(ctx context.Context, entries []ImportEntry, sessionID string) (*BulkImportResult, error) {
	if len(entries) == 0 {
		return nil, invalidArg("memories", "must not be empty")
	}
	if sessionID == "" {
		sessionID = "import_" + m.now().UTC().Format("20060102_150405")
	}
	if err := m.store.EnsureSchema(ctx); err != nil {
		return nil, WrapStorage("bulk_import", err)
	}

	result := &BulkImportResult{
		SessionID: sessionID,
		Total:     len(entries),
		Results:   make([]ImportItemResult, 0, len(entries)),
	}
	for i, entry := range entries {
		item := ImportItemResult{Index: i}
		res, err := m.Store(ctx, StoreInput{
			Content:   entry.Content,
			Tags:      entry.Tags,
			Context:   entry.Context,
			SessionID: sessionID,
			MemoryID:  entry.MemoryID,
		})
		if err != nil {
			item.Error = err.Error()
			result.Failed++
		} else {
			item.Success = true
			item.Status = res.Status
			item.MemoryID = res.MemoryID
			if res.Status == StatusDuplicate {
				item.MemoryID = res.ExistingID
			}
			result.Succeeded++
		}
		result.Results = append(result.Results, item)
	}

	evicted := m.cache.EvictPrefix(ctx, statsPrefix)
	m.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"succeeded":  result.Succeeded,
		"failed":     result.Failed,
		"evicted":    evicted,
	}).Info("bulk import finished")

	return result, nil
}

// ExportFormat selects the ExportSession rendering.
type ExportFormat string

const (
	// FormatJSON is a machine-readable array of records.
	FormatJSON ExportFormat = "json"
	// FormatMarkdown is a titled document with one section per record.
	FormatMarkdown ExportFormat = "markdown"
	// FormatText is "[n] timestamp / content / Tags:" blocks.
	FormatText ExportFormat = "text"
)

// ParseExportFormat accepts the canonical names and the aliases
// structured, outline and flat. Empty means JSON.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json", "structured":
		return FormatJSON, nil
	case "markdown", "md", "outline":
		return FormatMarkdown, nil
	case "text", "txt", "flat":
		return FormatText, nil
	}
	return "", invalidArg("format", fmt.Sprintf("%q is not supported", s))
}

// ExportResult is a rendered session.
type ExportResult struct {
	SessionID string       `json:"session_id"`
	Format    ExportFormat `json:"format"`
	Count     int          `json:"count"`
	Data      string       `json:"data"`
}

// exportItem is the structured export shape; embeddings and hashes stay
// internal.
type exportItem struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Tags      []string  `json:"tags"`
	Context   Metadata  `json:"context"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TextRule separates blocks in markdown and text exports.
const TextRule = "----------------------------------------"

// ExportSession renders every record of a session, most recent first.
func (m *Manager) ExportSession(ctx context.Context, sessionID string, format string) (*ExportResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, invalidArg("session_id", "is required")
	}
	f, err := ParseExportFormat(format)
	if err != nil {
		return nil, err
	}

	recs, err := m.store.Query(ctx, Query{SessionID: sessionID, OmitEmbedding: true})
	if err != nil {
		return nil, WrapStorage("export", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	var data string
	switch f {
	case FormatMarkdown:
		data = renderMarkdown(sessionID, recs, m.now().UTC())
	case FormatText:
		data = renderText(recs)
	default:
		data, err = renderJSON(recs)
		if err != nil {
			return nil, fmt.Errorf("export session %s: %w", sessionID, err)
		}
	}

	return &ExportResult{SessionID: sessionID, Format: f, Count: len(recs), Data: data}, nil
}

func renderJSON(recs []*Record) (string, error) {
	items := make([]exportItem, len(recs))
	for i, rec := range recs {
		tags := rec.Tags
		if tags == nil {
			tags = []string{}
		}
		items[i] = exportItem{
			ID:        rec.ID,
			Content:   rec.Content,
			Timestamp: rec.Timestamp,
			SessionID: rec.SessionID,
			Tags:      tags,
			Context:   rec.Context,
			UpdatedAt: rec.UpdatedAt,
		}
	}
	out, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func renderMarkdown(sessionID string, recs []*Record, exportedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Memory Export: %s\n\n", sessionID)
	fmt.Fprintf(&b, "Exported: %s\n", exportedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Total memories: %d\n\n", len(recs))

	for i, rec := range recs {
		b.WriteString(TextRule + "\n\n")
		fmt.Fprintf(&b, "## Memory %d\n\n", i+1)
		fmt.Fprintf(&b, "- **ID:** %s\n", rec.ID)
		fmt.Fprintf(&b, "- **Timestamp:** %s\n", rec.Timestamp.Format(time.RFC3339))
		if len(rec.Tags) > 0 {
			fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(rec.Tags, ", "))
		}
		fmt.Fprintf(&b, "\n%s\n\n", rec.Content)
	}
	return b.String()
}

func renderText(recs []*Record) string {
	blocks := make([]string, len(recs))
	for i, rec := range recs {
		blocks[i] = fmt.Sprintf("[%d] %s\n%s\nTags: %s\n",
			i+1, rec.Timestamp.Format(time.RFC3339), rec.Content, strings.Join(rec.Tags, ", "))
	}
	return strings.Join(blocks, "\n"+TextRule+"\n\n")
}
