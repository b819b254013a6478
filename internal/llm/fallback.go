package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// FallbackProvider chains backends so a chat turn survives a single provider
// outage. Attempts run in priority order; the first answer wins and later
// backends are never touched.
type FallbackProvider struct {
	chain  []Provider
	logger *slog.Logger
}

// NewFallbackProvider builds a chain from the given backends. The chain must
// not be empty; callers with a single backend should use it directly.
func NewFallbackProvider(chain []Provider, logger *slog.Logger) *FallbackProvider {
	if len(chain) == 0 {
		panic("fallback chain needs at least one provider")
	}
	return &FallbackProvider{chain: chain, logger: logger}
}

// SendMessage walks the chain until a backend answers. Each failure is logged
// and the next backend gets the same request; when every backend fails the
// last error is returned.
func (f *FallbackProvider) SendMessage(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for attempt, backend := range f.chain {
		resp, err := backend.SendMessage(ctx, req)
		if err == nil {
			if attempt > 0 {
				f.logger.InfoContext(ctx, "chat turn recovered on fallback backend",
					slog.String("provider", backend.Name()),
					slog.Int("attempt", attempt+1),
				)
			}
			return resp, nil
		}
		lastErr = err
		f.logger.WarnContext(ctx, "llm backend failed, falling through",
			slog.String("provider", backend.Name()),
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt+1),
			slog.Int("remaining", len(f.chain)-attempt-1),
		)
	}
	return nil, fmt.Errorf("all %d llm backends failed: %w", len(f.chain), lastErr)
}

// Name identifies the chain by its primary backend.
func (f *FallbackProvider) Name() string {
	return f.chain[0].Name() + "+fallback"
}
