package memory

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// SearchInput is the argument to Search.
type SearchInput struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Search returns records whose content contains Query, newest first.
//
// The match is case-sensitive even though deduplication ignores case.
func (m *Manager) Search(ctx context.Context, in SearchInput) ([]*Record, error) {
	if in.Query == "" {
		return nil, invalidArg("query", "is required")
	}

	limit := in.Limit
	if limit <= 0 {
		limit = m.config.SearchLimit
	}
	if limit > m.config.MaxSearchLimit {
		limit = m.config.MaxSearchLimit
	}

	recs, err := m.store.Query(ctx, Query{
		SessionID:     in.SessionID,
		Contains:      in.Query,
		OmitEmbedding: true,
		Limit:         limit,
	})
	if err != nil {
		return nil, WrapStorage("search", err)
	}
	return recs, nil
}

// SemanticInput is the argument to SemanticSearch.
type SemanticInput struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`

	// Threshold is the minimum similarity. Nil uses the configured default,
	// so an explicit 0 is honoured.
	Threshold *float64 `json:"threshold,omitempty"`

	Limit int `json:"limit,omitempty"`
}

// Threshold returns a pointer for SemanticInput.Threshold.
func Threshold(v float64) *float64 {
	return &v
}

// SemanticSearch ranks every embedded record in scope by cosine similarity
// to the query. Cost is linear in the number of records scanned.
// No match is an empty, non-nil result.
func (m *Manager) SemanticSearch(ctx context.Context, in SemanticInput) ([]*ScoredRecord, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, invalidArg("query", "is required")
	}

	threshold := m.config.SimilarityThreshold
	if in.Threshold != nil {
		threshold = *in.Threshold
	}
	limit := in.Limit
	if limit <= 0 {
		limit = m.config.SearchLimit
	}

	queryVec := m.embed(ctx, in.Query)
	if queryVec == nil {
		return []*ScoredRecord{}, nil
	}

	candidates, err := m.store.Query(ctx, Query{
		SessionID:     in.SessionID,
		WithEmbedding: true,
	})
	if err != nil {
		return nil, WrapStorage("semantic_search", err)
	}

	ranked := Rank(queryVec, candidates, threshold, limit)
	for _, r := range ranked {
		r.Similarity = round2(r.Similarity)
	}

	m.log.WithFields(logrus.Fields{
		"query":      truncate(in.Query, 50),
		"candidates": len(candidates),
		"matches":    len(ranked),
		"threshold":  threshold,
	}).Debug("semantic search")

	return ranked, nil
}

// GetRelated returns records semantically close to the given one, across
// all sessions. The source record itself is never included.
func (m *Manager) GetRelated(ctx context.Context, id string, limit int) ([]*ScoredRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidArg("memory_id", "is required")
	}
	if limit <= 0 {
		limit = m.config.RelatedLimit
	}

	src, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, m.lookupError("related", id, err)
	}
	if strings.TrimSpace(src.Content) == "" {
		return nil, invalidArg("memory", "has no content to compare")
	}

	threshold := m.config.RelatedThreshold
	matches, err := m.SemanticSearch(ctx, SemanticInput{
		Query:     src.Content,
		Threshold: &threshold,
		Limit:     limit + 1,
	})
	if err != nil {
		return nil, err
	}

	related := make([]*ScoredRecord, 0, limit)
	for _, match := range matches {
		if match.ID == id {
			continue
		}
		related = append(related, match)
		if len(related) == limit {
			break
		}
	}
	return related, nil
}
