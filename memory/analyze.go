package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"
)

// Analysis is the AnalyzeMemory report.
type Analysis struct {
	SessionID     string       `json:"session_id,omitempty"`
	Overview      Overview     `json:"overview"`
	TopTags       []TagCount   `json:"top_tags"`
	DailyActivity []DailyCount `json:"daily_activity"`
	Insights      []string     `json:"insights"`
}

// Overview holds headline counts.
type Overview struct {
	TotalMemories        int     `json:"total_memories"`
	UniqueSessions       int     `json:"unique_sessions"`
	AverageContentLength float64 `json:"average_content_length"`
	SpanDays             int     `json:"span_days"`
}

// TagCount is one bar of the tag histogram.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// DailyCount is the number of records created on Date (UTC, YYYY-MM-DD).
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

const (
	topTagCount       = 10
	activityDays      = 7
	lowActivityCount  = 3
	highActivityCount = 20
	shortContentLen   = 50
	longContentLen    = 1000
	manySessions      = 10
)

// AnalyzeMemory reports usage statistics for one session, or for every
// record when sessionID is empty.
func (m *Manager) AnalyzeMemory(ctx context.Context, sessionID string) (*Analysis, error) {
	scope := sessionID
	if scope == "" {
		scope = "*"
	}
	analysis, err := Fetch(ctx, m.cache, statsKey("analysis", scope), m.config.StatsTTL, func(ctx context.Context) (*Analysis, error) {
		recs, err := m.store.Query(ctx, Query{SessionID: sessionID, OmitEmbedding: true})
		if err != nil {
			return nil, err
		}
		return analyze(sessionID, recs, m.now().UTC()), nil
	})
	if err != nil {
		return nil, WrapStorage("analyze", err)
	}
	return analysis, nil
}

func analyze(sessionID string, recs []*Record, now time.Time) *Analysis {
	a := &Analysis{
		SessionID:     sessionID,
		TopTags:       []TagCount{},
		DailyActivity: dailyBuckets(now),
		Insights:      []string{},
	}
	if len(recs) == 0 {
		a.Insights = append(a.Insights, "No memories stored yet.")
		return a
	}

	sessions := make(map[string]struct{})
	tagCounts := make(map[string]int)
	dayIndex := make(map[string]int, len(a.DailyActivity))
	for i, d := range a.DailyActivity {
		dayIndex[d.Date] = i
	}

	var (
		totalLen    int
		untagged    int
		first, last = recs[0].Timestamp, recs[0].Timestamp
	)
	for _, rec := range recs {
		sessions[rec.SessionID] = struct{}{}
		totalLen += utf8.RuneCountInString(rec.Content)
		if len(rec.Tags) == 0 {
			untagged++
		}
		for _, tag := range rec.Tags {
			tagCounts[tag]++
		}
		if rec.Timestamp.Before(first) {
			first = rec.Timestamp
		}
		if rec.Timestamp.After(last) {
			last = rec.Timestamp
		}
		if i, ok := dayIndex[rec.Timestamp.UTC().Format(time.DateOnly)]; ok {
			a.DailyActivity[i].Count++
		}
	}

	a.Overview = Overview{
		TotalMemories:        len(recs),
		UniqueSessions:       len(sessions),
		AverageContentLength: math.Round(float64(totalLen)/float64(len(recs))*10) / 10,
		SpanDays:             int(last.Sub(first).Hours() / 24),
	}

	for tag, n := range tagCounts {
		a.TopTags = append(a.TopTags, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(a.TopTags, func(i, j int) bool {
		if a.TopTags[i].Count != a.TopTags[j].Count {
			return a.TopTags[i].Count > a.TopTags[j].Count
		}
		return a.TopTags[i].Tag < a.TopTags[j].Tag
	})
	if len(a.TopTags) > topTagCount {
		a.TopTags = a.TopTags[:topTagCount]
	}

	a.Insights = insights(a, untagged)
	return a
}

// dailyBuckets returns zeroed counts for the last activityDays days,
// oldest first, ending today.
func dailyBuckets(now time.Time) []DailyCount {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := make([]DailyCount, activityDays)
	for i := range days {
		days[i].Date = today.AddDate(0, 0, i-(activityDays-1)).Format(time.DateOnly)
	}
	return days
}

func insights(a *Analysis, untagged int) []string {
	var out []string
	total := a.Overview.TotalMemories

	recent := 0
	for _, d := range a.DailyActivity {
		recent += d.Count
	}
	switch {
	case recent == 0:
		out = append(out, "No activity in the last 7 days.")
	case recent < lowActivityCount:
		out = append(out, fmt.Sprintf("Low recent activity: %d memories in the last 7 days.", recent))
	case recent >= highActivityCount:
		out = append(out, fmt.Sprintf("High recent activity: %d memories in the last 7 days.", recent))
	}

	switch avg := a.Overview.AverageContentLength; {
	case avg < shortContentLen:
		out = append(out, "Memories are short on average; storing more context improves semantic search.")
	case avg > longContentLen:
		out = append(out, "Memories are long on average; splitting them into focused entries improves retrieval.")
	}

	if untagged*2 > total {
		out = append(out, fmt.Sprintf("%d of %d memories are untagged.", untagged, total))
	}
	if len(a.TopTags) > 0 && total >= 4 && a.TopTags[0].Count*2 > total {
		out = append(out, fmt.Sprintf("Tag %q appears on most memories.", a.TopTags[0].Tag))
	}
	if a.SessionID == "" && a.Overview.UniqueSessions > manySessions {
		out = append(out, fmt.Sprintf("Memories are spread across %d sessions.", a.Overview.UniqueSessions))
	}

	if out == nil {
		out = []string{}
	}
	return out
}
