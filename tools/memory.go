package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// Memory tool names.
const (
	ToolStoreMemory      = "store_memory"
	ToolRetrieveMemory   = "retrieve_memory"
	ToolSearchMemories   = "search_memories"
	ToolSemanticSearch   = "semantic_search"
	ToolDeleteMemory     = "delete_memory"
	ToolListSessions     = "list_sessions"
	ToolBulkImport       = "bulk_import"
	ToolExportSession    = "export_session"
	ToolAnalyzeMemory    = "analyze_memory"
	ToolTagMemories      = "tag_memories"
	ToolGetRelated       = "get_related"
	ToolSummarizeSession = "summarize_session"
)

// MemoryToolDefinitions returns the definitions for all memory tools.
func MemoryToolDefinitions() []core.ToolDefinition {
	return []core.ToolDefinition{
		// Read operations (thought optional)
		{
			ToolName:        ToolRetrieveMemory,
			ToolDescription: "Fetch one memory by its ID.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"memory_id": NonEmptyStringProperty("ID returned when the memory was stored"),
			}, false, "memory_id"),
		},
		{
			ToolName:        ToolSearchMemories,
			ToolDescription: "Find memories whose text contains the query exactly (case-sensitive), newest first.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"query":      NonEmptyStringProperty("Text to look for"),
				"session_id": StringProperty("Optional: only search this session"),
				"limit":      IntegerRangeProperty("Maximum results (default: 10)", 1, 100),
			}, false, "query"),
		},
		{
			ToolName:        ToolSemanticSearch,
			ToolDescription: "Find memories with similar meaning to the query, most similar first. Similarity is between -1 and 1.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"query":      NonEmptyStringProperty("What to look for, in natural language"),
				"session_id": StringProperty("Optional: only search this session"),
				"threshold":  NumberRangeProperty("Minimum similarity (default: 0.7)", -1, 1),
				"limit":      IntegerRangeProperty("Maximum results (default: 10)", 1, 100),
			}, false, "query"),
		},
		{
			ToolName:        ToolListSessions,
			ToolDescription: "List every session with its memory count and first and last activity, most recently active first.",
			InputSchema:     BuildSchemaWithThought(map[string]interface{}{}, false),
		},
		{
			ToolName:        ToolExportSession,
			ToolDescription: "Export all memories of a session as JSON, markdown or plain text.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"session_id": NonEmptyStringProperty("Session to export"),
				"format": StringEnumProperty("Output format (default: json)",
					"json", "structured", "markdown", "md", "outline", "text", "txt", "flat"),
			}, false, "session_id"),
		},
		{
			ToolName:        ToolAnalyzeMemory,
			ToolDescription: "Report memory statistics: totals, top tags, activity over the last 7 days and insights.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"session_id": StringProperty("Optional: analyze only this session"),
			}, false),
		},
		{
			ToolName:        ToolGetRelated,
			ToolDescription: "Find memories related in meaning to an existing memory, across all sessions.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"memory_id": NonEmptyStringProperty("Memory to find neighbours for"),
				"limit":     IntegerRangeProperty("Maximum results (default: 5)", 1, 50),
			}, false, "memory_id"),
		},
		{
			ToolName:        ToolSummarizeSession,
			ToolDescription: "Summarize the most recent memories of a session.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"session_id":  NonEmptyStringProperty("Session to summarize"),
				"max_records": IntegerRangeProperty("How many recent memories to include (default: 50)", 1, 500),
			}, false, "session_id"),
		},

		// Write operations (thought required)
		{
			ToolName:        ToolStoreMemory,
			ToolDescription: "Save a piece of knowledge. Content already stored (ignoring case and surrounding whitespace) is reported as a duplicate with the existing ID.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"content":    NonEmptyStringProperty("The text to remember"),
				"tags":       StringArrayProperty("Optional labels"),
				"context":    FreeObjectProperty("Optional structured metadata"),
				"session_id": StringProperty("Optional: session to file the memory under (default: \"default\")"),
				"memory_id":  StringProperty("Optional: overwrite the memory with this ID"),
			}, true, "content"),
		},
		{
			ToolName:        ToolTagMemories,
			ToolDescription: "Add tags to a memory. Existing tags are kept.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"memory_id": NonEmptyStringProperty("Memory to tag"),
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "Tags to add",
					"items":       map[string]interface{}{"type": "string"},
					"minItems":    1,
				},
			}, true, "memory_id", "tags"),
		},
		{
			ToolName:        ToolBulkImport,
			ToolDescription: "Store many memories at once. Each entry succeeds or fails on its own; the result lists every outcome.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"memories": map[string]interface{}{
					"type":        "array",
					"description": "Memories to store",
					"minItems":    1,
					"items": ObjectSchema(map[string]interface{}{
						"content":   StringProperty("The text to remember"),
						"tags":      StringArrayProperty("Optional labels"),
						"context":   FreeObjectProperty("Optional structured metadata"),
						"memory_id": StringProperty("Optional: overwrite the memory with this ID"),
					}, "content"),
				},
				"session_id": StringProperty("Optional: session for the whole batch (default: import_<timestamp>)"),
			}, true, "memories"),
		},
		{
			ToolName:        ToolDeleteMemory,
			ToolDescription: "Permanently delete a memory.",
			Destructive:     true,
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"memory_id": NonEmptyStringProperty("Memory to delete"),
			}, true, "memory_id"),
		},
	}
}

// MemoryTools binds every memory tool to m. Arguments are validated
// against the tool's schema before m is called.
func MemoryTools(m *memory.Manager, log logrus.FieldLogger) ([]core.Tool, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "tools")

	handlers := map[string]runner{
		ToolStoreMemory: run(func(ctx context.Context, in storeInput) (interface{}, error) {
			return m.Store(ctx, memory.StoreInput{
				Content:   in.Content,
				Tags:      in.Tags,
				Context:   in.Context,
				SessionID: in.SessionID,
				MemoryID:  in.MemoryID,
			})
		}),
		ToolRetrieveMemory: run(func(ctx context.Context, in idInput) (interface{}, error) {
			rec, err := m.Retrieve(ctx, in.MemoryID)
			if err != nil {
				return nil, err
			}
			return viewOf(rec, nil), nil
		}),
		ToolSearchMemories: run(func(ctx context.Context, in searchInput) (interface{}, error) {
			recs, err := m.Search(ctx, memory.SearchInput{Query: in.Query, SessionID: in.SessionID, Limit: in.Limit})
			if err != nil {
				return nil, err
			}
			views := make([]recordView, len(recs))
			for i, rec := range recs {
				views[i] = viewOf(rec, nil)
			}
			return map[string]interface{}{"count": len(views), "memories": views}, nil
		}),
		ToolSemanticSearch: run(func(ctx context.Context, in semanticInput) (interface{}, error) {
			matches, err := m.SemanticSearch(ctx, memory.SemanticInput{
				Query:     in.Query,
				SessionID: in.SessionID,
				Threshold: in.Threshold,
				Limit:     in.Limit,
			})
			if err != nil {
				return nil, err
			}
			return scoredResult(matches), nil
		}),
		ToolDeleteMemory: run(func(ctx context.Context, in idInput) (interface{}, error) {
			if err := m.Delete(ctx, in.MemoryID); err != nil {
				return nil, err
			}
			return map[string]interface{}{"memory_id": in.MemoryID, "deleted": true}, nil
		}),
		ToolListSessions: run(func(ctx context.Context, _ core.BaseInput) (interface{}, error) {
			sessions, err := m.ListSessions(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"count": len(sessions), "sessions": sessions}, nil
		}),
		ToolBulkImport: run(func(ctx context.Context, in bulkInput) (interface{}, error) {
			return m.BulkImport(ctx, in.Memories, in.SessionID)
		}),
		ToolExportSession: run(func(ctx context.Context, in exportInput) (interface{}, error) {
			return m.ExportSession(ctx, in.SessionID, in.Format)
		}),
		ToolAnalyzeMemory: run(func(ctx context.Context, in sessionInput) (interface{}, error) {
			return m.AnalyzeMemory(ctx, in.SessionID)
		}),
		ToolTagMemories: run(func(ctx context.Context, in tagInput) (interface{}, error) {
			return m.TagMemories(ctx, in.MemoryID, in.Tags)
		}),
		ToolGetRelated: run(func(ctx context.Context, in relatedInput) (interface{}, error) {
			matches, err := m.GetRelated(ctx, in.MemoryID, in.Limit)
			if err != nil {
				return nil, err
			}
			return scoredResult(matches), nil
		}),
		ToolSummarizeSession: run(func(ctx context.Context, in summarizeInput) (interface{}, error) {
			return m.SummarizeSession(ctx, in.SessionID, in.MaxRecords)
		}),
	}

	defs := MemoryToolDefinitions()
	out := make([]core.Tool, 0, len(defs))
	for _, def := range defs {
		h, ok := handlers[def.ToolName]
		if !ok {
			return nil, fmt.Errorf("no handler for tool %s", def.ToolName)
		}
		v, err := NewValidator(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.ToolName, err)
		}
		out = append(out, core.NewTool(def, dispatch(def.ToolName, v, h, log)))
	}
	return out, nil
}

// runner decodes validated arguments and calls the manager.
type runner func(ctx context.Context, input json.RawMessage) (data interface{}, thought string, err error)

type thoughtful interface {
	GetThought() string
}

func run[In thoughtful](fn func(context.Context, In) (interface{}, error)) runner {
	return func(ctx context.Context, input json.RawMessage) (interface{}, string, error) {
		var in In
		if len(strings.TrimSpace(string(input))) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, "", fmt.Errorf("%w: %v", memory.ErrInvalidArgument, err)
			}
		}
		data, err := fn(ctx, in)
		return data, in.GetThought(), err
	}
}

func dispatch(name string, v *Validator, r runner, log logrus.FieldLogger) core.ToolHandler {
	return func(ctx context.Context, input json.RawMessage) (*core.ToolResult, error) {
		if err := v.Validate(input); err != nil {
			log.WithField("tool", name).WithError(err).Debug("rejected tool arguments")
			return core.Failure(err), nil
		}

		start := time.Now()
		data, thought, err := r(ctx, input)
		entry := log.WithFields(logrus.Fields{
			"tool":     name,
			"duration": time.Since(start).String(),
		})
		if thought != "" {
			entry = entry.WithField("thought", thought)
		}

		switch {
		case err == nil:
			entry.Info("tool call")
			return core.Success(data), nil
		case memory.IsStorageError(err):
			entry.WithError(err).Error("tool call failed")
			return core.Failure(err), err
		default:
			entry.WithError(err).Info("tool call rejected")
			return core.Failure(err), nil
		}
	}
}

type storeInput struct {
	core.BaseInput
	Content   string          `json:"content"`
	Tags      []string        `json:"tags"`
	Context   memory.Metadata `json:"context"`
	SessionID string          `json:"session_id"`
	MemoryID  string          `json:"memory_id"`
}

type idInput struct {
	core.BaseInput
	MemoryID string `json:"memory_id"`
}

type searchInput struct {
	core.BaseInput
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit"`
}

type semanticInput struct {
	core.BaseInput
	Query     string   `json:"query"`
	SessionID string   `json:"session_id"`
	Threshold *float64 `json:"threshold"`
	Limit     int      `json:"limit"`
}

type sessionInput struct {
	core.BaseInput
	SessionID string `json:"session_id"`
}

type exportInput struct {
	core.BaseInput
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
}

type bulkInput struct {
	core.BaseInput
	Memories  []memory.ImportEntry `json:"memories"`
	SessionID string               `json:"session_id"`
}

type tagInput struct {
	core.BaseInput
	MemoryID string   `json:"memory_id"`
	Tags     []string `json:"tags"`
}

type relatedInput struct {
	core.BaseInput
	MemoryID string `json:"memory_id"`
	Limit    int    `json:"limit"`
}

type summarizeInput struct {
	core.BaseInput
	SessionID  string `json:"session_id"`
	MaxRecords int    `json:"max_records"`
}

// recordView is a record without its embedding.
type recordView struct {
	ID         string          `json:"id"`
	Content    string          `json:"content"`
	Timestamp  time.Time       `json:"timestamp"`
	SessionID  string          `json:"session_id"`
	Tags       []string        `json:"tags"`
	Context    memory.Metadata `json:"context"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Similarity *float64        `json:"similarity,omitempty"`
}

func viewOf(rec *memory.Record, similarity *float64) recordView {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return recordView{
		ID:         rec.ID,
		Content:    rec.Content,
		Timestamp:  rec.Timestamp,
		SessionID:  rec.SessionID,
		Tags:       tags,
		Context:    rec.Context,
		UpdatedAt:  rec.UpdatedAt,
		Similarity: similarity,
	}
}

func scoredResult(matches []*memory.ScoredRecord) map[string]interface{} {
	views := make([]recordView, len(matches))
	for i, match := range matches {
		sim := match.Similarity
		views[i] = viewOf(match.Record, &sim)
	}
	return map[string]interface{}{"count": len(views), "memories": views}
}
