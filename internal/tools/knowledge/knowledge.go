// Package knowledgetool exposes the knowledge retrieval engine as an
// assistant tool.
package knowledgetool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariahq/aria/internal/knowledge"
	"github.com/ariahq/aria/internal/tools"
)

type searchTool struct {
	engine *knowledge.Engine
}

// New returns the search_knowledge tool over the given engine.
func New(engine *knowledge.Engine) tools.Tool {
	return &searchTool{engine: engine}
}

func (t *searchTool) Name() string { return "search_knowledge" }

func (t *searchTool) Description() string {
	return "Search the wellness knowledge base for meditation, sleep, focus, and sound therapy guidance. " +
		"Returns ranked entries; when nothing matches, lists the available topics."
}

func (t *searchTool) RequiresApproval() bool { return false }

func (t *searchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look up, in plain language",
			},
			"topic": map[string]any{
				"type":        "string",
				"description": "Optional category filter (e.g. meditation, sleep)",
			},
		},
		"required": []any{"query"},
	}
}

func (t *searchTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	query, _ := params["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	topic, _ := params["topic"].(string)

	result := t.engine.Search(ctx, query, topic)
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling search result: %w", err)
	}
	return &tools.Result{
		Output:  string(out),
		Success: true,
		Metadata: map[string]any{
			"found":   result.Found,
			"results": len(result.Results),
		},
	}, nil
}
