package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// defaultToolTimeout bounds a single tool execution. Tools doing network
// I/O must not stall the whole model turn.
const defaultToolTimeout = 30 * time.Second

// wrapped decorates a Tool with error isolation and output sanitization.
// Every tool passes through here before the model can call it: a panicking
// or failing tool becomes a structured error result, and oversized output
// is truncated with a marker rather than rejected.
type wrapped struct {
	inner    Tool
	maxBytes int
	timeout  time.Duration
	logger   *slog.Logger
}

// Wrap applies the error-isolation and sanitization layers to a tool.
// maxBytes <= 0 uses MaxOutputBytes; timeout <= 0 uses a 30s default.
func Wrap(t Tool, maxBytes int, timeout time.Duration, logger *slog.Logger) Tool {
	if maxBytes <= 0 {
		maxBytes = MaxOutputBytes
	}
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	return &wrapped{inner: t, maxBytes: maxBytes, timeout: timeout, logger: logger}
}

func (w *wrapped) Name() string                { return w.inner.Name() }
func (w *wrapped) Description() string         { return w.inner.Description() }
func (w *wrapped) InputSchema() map[string]any { return w.inner.InputSchema() }
func (w *wrapped) RequiresApproval() bool      { return w.inner.RequiresApproval() }

// Execute runs the inner tool. It never returns a non-nil error: failures
// and panics are converted to structured error results so a broken tool
// cannot abort the surrounding model turn.
func (w *wrapped) Execute(ctx context.Context, params map[string]any) (res *Result, _ error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "tool panicked",
				slog.String("tool", w.inner.Name()),
				slog.Any("panic", r),
			)
			res = errorResult(fmt.Sprintf("tool %s crashed: %v", w.inner.Name(), r))
		}
	}()

	inner, err := w.inner.Execute(ctx, params)
	if err != nil {
		w.logger.WarnContext(ctx, "tool execution failed",
			slog.String("tool", w.inner.Name()),
			slog.String("error", err.Error()),
		)
		if ctx.Err() != nil {
			return errorResult(fmt.Sprintf("tool %s timed out", w.inner.Name())), nil
		}
		return errorResult(err.Error()), nil
	}
	if inner == nil {
		return errorResult(fmt.Sprintf("tool %s returned no result", w.inner.Name())), nil
	}

	return w.sanitize(inner), nil
}

// sanitize size-checks the result and truncates oversized output in place.
func (w *wrapped) sanitize(res *Result) *Result {
	res.SizeBytes = len(res.Output)
	if res.SizeBytes > w.maxBytes {
		res.Output = TruncateOutput(res.Output, w.maxBytes)
		res.Truncated = true
		w.logger.Debug("tool output truncated",
			slog.String("tool", w.inner.Name()),
			slog.Int("original_bytes", res.SizeBytes),
			slog.Int("max_bytes", w.maxBytes),
		)
	}
	return res
}

func errorResult(msg string) *Result {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return &Result{
		Output:    string(out),
		SizeBytes: len(out),
		Success:   false,
	}
}

// WrapAll registers each tool in reg after wrapping it.
func WrapAll(reg *Registry, maxBytes int, timeout time.Duration, logger *slog.Logger, ts ...Tool) {
	for _, t := range ts {
		reg.Register(Wrap(t, maxBytes, timeout, logger))
	}
}
