// Package tools defines the tool interface and registry for the assistant.
// Tools split into read-only query tools and proposal tools; the latter
// declare RequiresApproval so the orchestration layer and UI can gate them.
package tools

import (
	"context"
	"sync"

	"github.com/ariahq/aria/internal/llm"
	"github.com/ariahq/aria/internal/proposal"
)

// Tool is the interface all assistant tools must implement.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "search_knowledge").
	Name() string

	// Description returns a human-readable description sent to the model.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's parameters.
	InputSchema() map[string]any

	// RequiresApproval reports whether this tool produces an
	// approval-gated proposal instead of a plain result.
	RequiresApproval() bool

	// Execute runs the tool with the given parameters.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result is the outcome of a tool execution. Output is what the model sees,
// after sanitization; SizeBytes and Truncated describe what sanitization did.
type Result struct {
	Output    string         `json:"output"`
	SizeBytes int            `json:"size_bytes"`
	Truncated bool           `json:"truncated"`
	Success   bool           `json:"success"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Proposal is set by proposal tools; nil for query tools. It rides
	// alongside Output so the transport can render an approval card
	// without re-parsing the model-facing JSON.
	Proposal proposal.Proposal `json:"-"`
}

// MaxOutputBytes is the default cap for tool output to prevent OOM
// and runaway model context.
const MaxOutputBytes = 64 << 10 // 64 KB

// TruncateOutput caps a string at maxBytes, appending a truncation notice if cut.
func TruncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	const suffix = "\n... [output truncated]"
	if maxBytes <= len(suffix) {
		return s[:maxBytes]
	}
	return s[:maxBytes-len(suffix)] + suffix
}

// Registry holds available tools keyed by name.
// Thread-safe for concurrent reads; writes should only happen at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on duplicate names (startup config error, not runtime).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// All returns all registered tools.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	return result
}

// Capabilities are per-request feature flags that shape the tool set.
type Capabilities struct {
	// WebSearch enables the provider-native web search tool. Only OpenAI
	// exposes one; the flag is ignored for other providers.
	WebSearch bool
}

// webSearchDefinition is the provider-native web search tool. It has no
// local Execute: the provider runs it server-side.
var webSearchDefinition = llm.ToolDefinition{
	Name:        "web_search",
	Description: "Search the web for current information.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query"},
		},
		"required": []any{"query"},
	},
}

// Definitions assembles the provider-specific tool set for one request:
// every registered tool, plus provider-conditional native tools.
func (r *Registry) Definitions(provider llm.ProviderID, caps Capabilities) []llm.ToolDefinition {
	all := r.All()
	defs := make([]llm.ToolDefinition, 0, len(all)+1)
	for _, t := range all {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	if caps.WebSearch && provider == llm.ProviderOpenAI {
		defs = append(defs, webSearchDefinition)
	}
	return defs
}
