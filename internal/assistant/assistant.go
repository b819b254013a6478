// Package assistant orchestrates one chat turn: provider selection, response
// cache lookup, the model/tool loop, proposal collection, and cache
// write-back. It owns no transport; the HTTP gateway calls into it.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ariahq/aria/internal/cache"
	"github.com/ariahq/aria/internal/llm"
	"github.com/ariahq/aria/internal/proposal"
	"github.com/ariahq/aria/internal/tools"
)

const (
	// DefaultMaxIterations bounds the model/tool loop per turn.
	DefaultMaxIterations = 8
	// DefaultMaxHistoryMessages bounds how much conversation is replayed.
	DefaultMaxHistoryMessages = 40
	// DefaultMaxTokens is the per-response token cap sent to providers.
	DefaultMaxTokens = 2048
)

// Input is one user turn.
type Input struct {
	Message string
	// History is the prior conversation, oldest first. The current message
	// is appended internally.
	History []llm.Message
	// ProviderOverride forces a specific provider for this turn.
	ProviderOverride llm.ProviderID
	// Capabilities are the per-request feature flags shaping the tool set.
	Capabilities tools.Capabilities
}

// Output is the assistant's reply for one turn.
type Output struct {
	Message   string
	Proposals []proposal.Proposal
	Provider  llm.ProviderID
	Model     string
	Tokens    int
	CostUSD   float64
	Cached    bool
}

// Options configure an Assistant. Zero values take defaults.
type Options struct {
	SystemPrompt       string
	MaxIterations      int
	MaxHistoryMessages int
	MaxTokens          int
}

// Assistant wires the selector, the concrete providers, the tool registry,
// and the response cache into a single Chat entry point.
type Assistant struct {
	selector  *llm.Selector
	providers map[llm.ProviderID]llm.Provider
	registry  *tools.Registry
	cache     *cache.ResponseCache // nil disables caching
	opts      Options
	logger    *slog.Logger
}

// New creates an Assistant. providers maps each configured backend to its
// client; the selector decides which one serves a given turn.
func New(selector *llm.Selector, providers map[llm.ProviderID]llm.Provider, registry *tools.Registry, responseCache *cache.ResponseCache, opts Options, logger *slog.Logger) *Assistant {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.MaxHistoryMessages <= 0 {
		opts.MaxHistoryMessages = DefaultMaxHistoryMessages
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Assistant{
		selector:  selector,
		providers: providers,
		registry:  registry,
		cache:     responseCache,
		opts:      opts,
		logger:    logger,
	}
}

// Chat runs one turn. Cached turns skip the provider entirely; fresh turns
// run the model/tool loop and write cacheable answers back.
func (a *Assistant) Chat(ctx context.Context, in Input) (*Output, error) {
	handle := a.selector.SelectModel(in.ProviderOverride)
	mode := string(handle.Provider) + "/" + handle.Model

	var key string
	if a.cache != nil && len(in.History) == 0 {
		// Only context-free turns are cache candidates: with history, the
		// same message can mean something different.
		key = cache.Key(mode, in.Message, a.contextSignature(handle.Provider, in.Capabilities))
		if resp, ok := a.cache.Get(ctx, key); ok {
			a.logger.InfoContext(ctx, "response cache hit",
				slog.String("mode", mode),
			)
			return &Output{
				Message:  resp,
				Provider: handle.Provider,
				Model:    handle.Model,
				Cached:   true,
			}, nil
		}
	}

	provider, err := a.buildProvider(handle, in.ProviderOverride)
	if err != nil {
		return nil, err
	}

	out, err := a.runTurn(ctx, provider, handle, in)
	if err != nil {
		return nil, err
	}

	if a.cache != nil && key != "" && cache.Cacheable(in.Message, out.Message, len(out.Proposals) > 0) {
		a.cache.Put(ctx, key, out.Message)
	}
	return out, nil
}

// buildProvider resolves the concrete client for the selected handle and
// chains the fallback provider behind it when a distinct backend is
// available.
func (a *Assistant) buildProvider(handle llm.ModelHandle, override llm.ProviderID) (llm.Provider, error) {
	primary, ok := a.providers[handle.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %s is not configured", handle.Provider)
	}
	chain := []llm.Provider{primary}
	if fb := a.selector.SelectFallback(override); fb != nil {
		if p, ok := a.providers[fb.Provider]; ok {
			chain = append(chain, p)
		}
	}
	if len(chain) == 1 {
		return primary, nil
	}
	return llm.NewFallbackProvider(chain, a.logger), nil
}

// runTurn is the model/tool loop: send, execute requested tools, feed results
// back, repeat until the model stops asking for tools or the iteration cap.
func (a *Assistant) runTurn(ctx context.Context, provider llm.Provider, handle llm.ModelHandle, in Input) (*Output, error) {
	history := truncateHistory(in.History, a.opts.MaxHistoryMessages)
	history = append(history, llm.Message{Role: llm.RoleUser, Content: in.Message})

	toolDefs := a.registry.Definitions(handle.Provider, in.Capabilities)

	out := &Output{Provider: handle.Provider, Model: handle.Model}
	var usage llm.Usage

	for iter := 0; iter < a.opts.MaxIterations; iter++ {
		resp, err := provider.SendMessage(ctx, &llm.Request{
			SystemPrompt: a.opts.SystemPrompt,
			Messages:     history,
			MaxTokens:    a.opts.MaxTokens,
			Tools:        toolDefs,
		})
		if err != nil {
			return nil, fmt.Errorf("llm request failed: %w", err)
		}

		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		history = append(history, llm.Message{
			Role:          llm.RoleAssistant,
			ContentBlocks: resp.ContentBlocks,
		})

		if !resp.HasToolUse() {
			out.Message = resp.Content
			out.Tokens = usage.InputTokens + usage.OutputTokens
			out.CostUSD = a.selector.EstimateCost(handle.Model, usage.InputTokens, usage.OutputTokens)
			return out, nil
		}

		calls := resp.ToolUseBlocks()
		a.logger.InfoContext(ctx, "executing tool calls",
			slog.Int("iteration", iter+1),
			slog.Int("tool_calls", len(calls)),
		)

		resultBlocks := a.executeToolCalls(ctx, calls, out)
		history = append(history, llm.Message{
			Role:          llm.RoleUser,
			ContentBlocks: resultBlocks,
		})
	}

	a.logger.WarnContext(ctx, "max tool-use iterations reached",
		slog.Int("max_iterations", a.opts.MaxIterations),
	)
	out.Message = "I couldn't finish that request. Please try rephrasing it."
	out.Tokens = usage.InputTokens + usage.OutputTokens
	out.CostUSD = a.selector.EstimateCost(handle.Model, usage.InputTokens, usage.OutputTokens)
	return out, nil
}

// executeToolCalls runs each requested tool and returns the tool_result
// blocks for the next model message. Proposals produced by tools accumulate
// on out. Unknown tool names become error results, never turn failures.
func (a *Assistant) executeToolCalls(ctx context.Context, calls []llm.ContentBlock, out *Output) []llm.ContentBlock {
	blocks := make([]llm.ContentBlock, 0, len(calls))
	for _, call := range calls {
		tool := a.registry.Get(call.Name)
		if tool == nil {
			a.logger.WarnContext(ctx, "model requested unknown tool", slog.String("tool", call.Name))
			blocks = append(blocks, llm.ToolResultBlock(call.ID, fmt.Sprintf("unknown tool: %s", call.Name), true))
			continue
		}

		res, err := tool.Execute(ctx, call.Input)
		if err != nil {
			// Wrapped tools never error; a raw tool slipping through still
			// must not abort the turn.
			blocks = append(blocks, llm.ToolResultBlock(call.ID, err.Error(), true))
			continue
		}
		if res.Proposal != nil {
			out.Proposals = append(out.Proposals, res.Proposal)
		}
		blocks = append(blocks, llm.ToolResultBlock(call.ID, res.Output, !res.Success))
	}
	return blocks
}

// contextSignature captures everything besides the message that shapes the
// answer: the provider-visible tool set. Two deployments exposing different
// tools must not share cache entries.
func (a *Assistant) contextSignature(provider llm.ProviderID, caps tools.Capabilities) string {
	defs := a.registry.Definitions(provider, caps)
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// truncateHistory keeps the most recent messages and ensures the window
// starts on a user turn.
func truncateHistory(history []llm.Message, max int) []llm.Message {
	if len(history) <= max {
		return append([]llm.Message(nil), history...)
	}
	truncated := history[len(history)-max:]
	if len(truncated) > 0 && truncated[0].Role == llm.RoleAssistant {
		truncated = truncated[1:]
	}
	return append([]llm.Message(nil), truncated...)
}
