package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Summary is a short digest of one session.
type Summary struct {
	SessionID   string   `json:"session_id"`
	MemoryCount int      `json:"memory_count"`
	Generated   bool     `json:"generated"`
	Text        string   `json:"text"`
	TopTags     []string `json:"top_tags"`
}

const summaryTopTags = 5

// SummarizeSession condenses the most recent records of a session. With a
// Generator configured the text is model-written; otherwise, or when the
// generator fails, it is an extractive digest of record previews.
func (m *Manager) SummarizeSession(ctx context.Context, sessionID string, maxRecords int) (*Summary, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, invalidArg("session_id", "is required")
	}
	if maxRecords <= 0 {
		maxRecords = m.config.SummaryRecords
	}

	recs, err := m.store.Query(ctx, Query{
		SessionID:     sessionID,
		OmitEmbedding: true,
		Limit:         maxRecords,
	})
	if err != nil {
		return nil, WrapStorage("summarize", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	// Oldest first reads as a narrative.
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})

	s := &Summary{
		SessionID:   sessionID,
		MemoryCount: len(recs),
		TopTags:     summaryTags(recs),
	}

	if m.gen != nil {
		text, err := m.gen.Generate(ctx, summaryPrompt(sessionID, recs))
		text = strings.TrimSpace(text)
		switch {
		case err != nil:
			m.log.WithError(err).WithField("session_id", sessionID).Warn("summary generation failed, using extractive summary")
		case text == "":
			m.log.WithField("session_id", sessionID).Warn("generator returned empty summary, using extractive summary")
		default:
			s.Text = text
			s.Generated = true
			return s, nil
		}
	}

	s.Text = extractiveSummary(recs, m.config.PreviewLength)
	return s, nil
}

func summaryPrompt(sessionID string, recs []*Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following %d notes from session %q in a few sentences. ", len(recs), sessionID)
	b.WriteString("Focus on decisions, facts and open items. Reply with the summary only.\n\n")
	for i, rec := range recs {
		fmt.Fprintf(&b, "%d. [%s]", i+1, rec.Timestamp.Format(time.DateOnly))
		if len(rec.Tags) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(rec.Tags, ", "))
		}
		fmt.Fprintf(&b, " %s\n", rec.Content)
	}
	return b.String()
}

func extractiveSummary(recs []*Record, n int) string {
	lines := make([]string, len(recs))
	for i, rec := range recs {
		lines[i] = "- " + preview(strings.Join(strings.Fields(rec.Content), " "), n)
	}
	return strings.Join(lines, "\n")
}

func summaryTags(recs []*Record) []string {
	counts := make(map[string]int)
	for _, rec := range recs {
		for _, tag := range rec.Tags {
			counts[tag]++
		}
	}
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > summaryTopTags {
		tags = tags[:summaryTopTags]
	}
	return tags
}
