package llm

import (
	"log/slog"
	"math"
	"sort"
)

// ProviderID identifies a configured LLM backend in the selection priority list.
type ProviderID string

const (
	ProviderAnthropic ProviderID = "anthropic"
	ProviderOpenAI    ProviderID = "openai"
	ProviderGroq      ProviderID = "groq"
	ProviderOllama    ProviderID = "ollama"
)

// selectionOrder is the fixed provider priority. The first available entry
// wins; the fallback is the next available entry after the selection.
var selectionOrder = []ProviderID{ProviderAnthropic, ProviderOpenAI, ProviderGroq, ProviderOllama}

// defaultModels maps each provider to the model used when none is configured.
var defaultModels = map[ProviderID]string{
	ProviderAnthropic: "claude-sonnet-4-5",
	ProviderOpenAI:    "gpt-4o",
	ProviderGroq:      "llama-3.3-70b-versatile",
	ProviderOllama:    "llama3.1",
}

// ModelHandle is the result of a selection: which provider to talk to and
// which model to request from it. A handle is returned even when no
// credential is configured; the failure then surfaces on the first call
// against the handle rather than at selection time.
type ModelHandle struct {
	Provider ProviderID
	Model    string
}

// Rate is the USD cost per 1K tokens for one model.
type Rate struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

// defaultRates is the hard-coded cost table. Config overrides are merged
// on top of it wholesale at construction.
var defaultRates = map[string]Rate{
	"claude-sonnet-4-5":       {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-haiku-4-5":        {InputPer1K: 0.001, OutputPer1K: 0.005},
	"gpt-4o":                  {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":             {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"llama-3.3-70b-versatile": {InputPer1K: 0.00059, OutputPer1K: 0.00079},
	"llama3.1":                {InputPer1K: 0, OutputPer1K: 0},
	"text-embedding-3-small":  {InputPer1K: 0.00002, OutputPer1K: 0},
}

// defaultRate applies to model ids missing from the table.
var defaultRate = Rate{InputPer1K: 0.003, OutputPer1K: 0.015}

// SelectorConfig configures the provider selector.
type SelectorConfig struct {
	// Credentials maps provider id to its API key. A provider is
	// "available" when its credential is non-empty. Ollama needs no key
	// and is available when its entry is present (any value).
	Credentials map[ProviderID]string

	// Models overrides the default model per provider.
	Models map[ProviderID]string

	// RateOverrides is merged over the built-in cost table.
	RateOverrides map[string]Rate
}

// Selector picks the provider/model for a chat turn and estimates call cost.
// Availability means a credential is configured, not that the provider is
// currently healthy; health failures are handled by the fallback path.
type Selector struct {
	cfg    SelectorConfig
	rates  map[string]Rate
	logger *slog.Logger
}

// NewSelector creates a selector. Rate overrides are merged immediately.
func NewSelector(cfg SelectorConfig, logger *slog.Logger) *Selector {
	rates := make(map[string]Rate, len(defaultRates)+len(cfg.RateOverrides))
	for id, r := range defaultRates {
		rates[id] = r
	}
	for id, r := range cfg.RateOverrides {
		rates[id] = r
	}
	return &Selector{cfg: cfg, rates: rates, logger: logger}
}

// SelectModel returns the handle for the highest-priority available provider,
// or for override when non-empty. When nothing is available the nominal
// default provider is returned anyway (fail-late).
func (s *Selector) SelectModel(override ProviderID) ModelHandle {
	if override != "" {
		return s.handle(override)
	}
	for _, id := range selectionOrder {
		if s.available(id) {
			return s.handle(id)
		}
	}
	s.logger.Warn("no provider credential configured, deferring failure to first call",
		slog.String("provider", string(selectionOrder[0])),
	)
	return s.handle(selectionOrder[0])
}

// SelectFallback returns the highest-priority available provider other than
// the current selection, or nil when no distinct provider is available.
func (s *Selector) SelectFallback(override ProviderID) *ModelHandle {
	selected := s.SelectModel(override)
	for _, id := range selectionOrder {
		if id == selected.Provider {
			continue
		}
		if s.available(id) {
			h := s.handle(id)
			return &h
		}
	}
	return nil
}

// Available reports whether the provider's credential is configured.
func (s *Selector) Available(id ProviderID) bool { return s.available(id) }

func (s *Selector) available(id ProviderID) bool {
	cred, ok := s.cfg.Credentials[id]
	if id == ProviderOllama {
		return ok
	}
	return cred != ""
}

func (s *Selector) handle(id ProviderID) ModelHandle {
	model := s.cfg.Models[id]
	if model == "" {
		model = defaultModels[id]
	}
	return ModelHandle{Provider: id, Model: model}
}

// EstimateCost returns the estimated USD cost for a call against modelID.
// Unknown models fall back to a conservative default rate.
func (s *Selector) EstimateCost(modelID string, inputTokens, outputTokens int) float64 {
	rate, ok := s.rates[modelID]
	if !ok {
		rate = defaultRate
	}
	cost := float64(inputTokens)/1000*rate.InputPer1K + float64(outputTokens)/1000*rate.OutputPer1K
	// Round to microdollars to keep audit output stable.
	return math.Round(cost*1e6) / 1e6
}

// KnownModels returns the model ids in the merged rate table, sorted.
func (s *Selector) KnownModels() []string {
	ids := make([]string, 0, len(s.rates))
	for id := range s.rates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
