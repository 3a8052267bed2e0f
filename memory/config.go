package memory

import "time"

// Config holds Manager tunables.
type Config struct {
	// DefaultSessionID is used when a store call names no session.
	// Default: "default".
	DefaultSessionID string `yaml:"default_session_id"`

	// SearchLimit is the result count when a search names none.
	// Default: 10.
	SearchLimit int `yaml:"search_limit"`

	// MaxSearchLimit caps substring search results.
	// Default: 100.
	MaxSearchLimit int `yaml:"max_search_limit"`

	// SimilarityThreshold is the default minimum similarity for semantic
	// search [-1.0, 1.0].
	// Default: 0.7
	// Note: tiny local models (all-MiniLM-L6-v2) score related text lower;
	// 0.3-0.5 is a better fit for them.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// RelatedThreshold is the minimum similarity used by GetRelated.
	// Default: 0.3
	RelatedThreshold float64 `yaml:"related_threshold"`

	// RelatedLimit is the GetRelated result count when none is given.
	// Default: 5.
	RelatedLimit int `yaml:"related_limit"`

	// PreviewLength is the rune count of StoreResult.ContentPreview.
	// Default: 100.
	PreviewLength int `yaml:"preview_length"`

	// ProjectionTTL bounds the memory:<id> projection written on store.
	// Default: 1h.
	ProjectionTTL time.Duration `yaml:"projection_ttl"`

	// RecordTTL bounds read-through copies of full records.
	// Default: 5m.
	RecordTTL time.Duration `yaml:"record_ttl"`

	// StatsTTL bounds cached session listings and analyses.
	// Default: 1m.
	StatsTTL time.Duration `yaml:"stats_ttl"`

	// SummaryRecords caps how many records feed a session summary.
	// Default: 50.
	SummaryRecords int `yaml:"summary_records"`
}

// DefaultConfig returns the reference tunables.
func DefaultConfig() Config {
	return Config{
		DefaultSessionID:    DefaultSessionID,
		SearchLimit:         10,
		MaxSearchLimit:      100,
		SimilarityThreshold: 0.7,
		RelatedThreshold:    0.3,
		RelatedLimit:        5,
		PreviewLength:       100,
		ProjectionTTL:       time.Hour,
		RecordTTL:           5 * time.Minute,
		StatsTTL:            time.Minute,
		SummaryRecords:      50,
	}
}

// withDefaults fills zero fields from DefaultConfig. Thresholds are left
// alone since zero is a meaningful value for them.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultSessionID == "" {
		c.DefaultSessionID = d.DefaultSessionID
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = d.SearchLimit
	}
	if c.MaxSearchLimit <= 0 {
		c.MaxSearchLimit = d.MaxSearchLimit
	}
	if c.RelatedLimit <= 0 {
		c.RelatedLimit = d.RelatedLimit
	}
	if c.PreviewLength <= 0 {
		c.PreviewLength = d.PreviewLength
	}
	if c.ProjectionTTL <= 0 {
		c.ProjectionTTL = d.ProjectionTTL
	}
	if c.RecordTTL <= 0 {
		c.RecordTTL = d.RecordTTL
	}
	if c.StatsTTL <= 0 {
		c.StatsTTL = d.StatsTTL
	}
	if c.SummaryRecords <= 0 {
		c.SummaryRecords = d.SummaryRecords
	}
	return c
}
