package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/ariahq/aria/internal/llm"
	"github.com/ariahq/aria/internal/tools"
)

// --- No-op path ---

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil Observability for nil config")
	}
}

func TestNew_AllDisabled(t *testing.T) {
	obs, err := New(&Config{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs == nil {
		t.Fatal("expected non-nil Observability")
	}
	if obs.Metrics != nil {
		t.Error("metrics should be nil when not enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracer should be nil when not enabled")
	}
	if obs.Anomaly != nil {
		t.Error("anomaly should be nil when not enabled")
	}
	if obs.Health == nil {
		t.Error("health checker should always be created")
	}
}

func TestObservability_ShutdownNil(t *testing.T) {
	// Should not panic.
	var obs *Observability
	obs.Shutdown(context.Background())
}

func TestTracerOrNil_Nil(t *testing.T) {
	var obs *Observability
	if obs.TracerOrNil() != nil {
		t.Error("expected nil tracer from nil Observability")
	}
}

// --- MetricsCollector ---

func TestMetricsCollector_Created(t *testing.T) {
	m := NewMetricsCollector()
	if m == nil || m.Registry == nil {
		t.Fatal("expected collector with registry")
	}

	// CounterVecs only appear in Gather after first use.
	m.LLMRequestsTotal.WithLabelValues("anthropic", "success").Inc()
	m.ToolExecutionsTotal.WithLabelValues("search_knowledge", "success").Inc()
	m.CacheLookupsTotal.WithLabelValues("hit").Inc()
	m.RateLimitDecisionsTotal.WithLabelValues("chat", "allowed").Inc()
	m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/chat", "200").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, expected := range []string{
		"aria_llm_requests_total",
		"aria_tool_executions_total",
		"aria_cache_lookups_total",
		"aria_ratelimit_decisions_total",
		"aria_http_requests_total",
	} {
		if !names[expected] {
			t.Errorf("metric %q not found in registry", expected)
		}
	}
}

func counterValue(t *testing.T, m *MetricsCollector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		got[l.GetName()] = l.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// --- InstrumentedProvider ---

type stubProvider struct {
	resp *llm.Response
	err  error
}

func (s *stubProvider) Name() string { return "anthropic" }
func (s *stubProvider) SendMessage(context.Context, *llm.Request) (*llm.Response, error) {
	return s.resp, s.err
}

func TestInstrumentedProvider_RecordsSuccessAndTokens(t *testing.T) {
	m := NewMetricsCollector()
	p := NewInstrumentedProvider(&stubProvider{resp: &llm.Response{
		Content: "hi",
		Usage:   llm.Usage{InputTokens: 10, OutputTokens: 5},
	}}, m, nil, nil)

	if _, err := p.SendMessage(context.Background(), &llm.Request{}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	got := counterValue(t, m, "aria_llm_requests_total",
		map[string]string{"provider": "anthropic", "status": "success"})
	if got != 1 {
		t.Errorf("expected 1 success request, got %v", got)
	}
	in := counterValue(t, m, "aria_llm_tokens_used_total",
		map[string]string{"provider": "anthropic", "direction": "input"})
	if in != 10 {
		t.Errorf("expected 10 input tokens, got %v", in)
	}
}

func TestInstrumentedProvider_RecordsError(t *testing.T) {
	m := NewMetricsCollector()
	p := NewInstrumentedProvider(&stubProvider{err: errors.New("boom")}, m, nil, nil)

	if _, err := p.SendMessage(context.Background(), &llm.Request{}); err == nil {
		t.Fatal("expected error to propagate")
	}
	got := counterValue(t, m, "aria_llm_requests_total",
		map[string]string{"provider": "anthropic", "status": "error"})
	if got != 1 {
		t.Errorf("expected 1 error request, got %v", got)
	}
}

// --- InstrumentedTool ---

type stubTool struct {
	res *tools.Result
	err error
}

func (s *stubTool) Name() string                { return "search_tracks" }
func (s *stubTool) Description() string         { return "stub" }
func (s *stubTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }
func (s *stubTool) RequiresApproval() bool      { return false }
func (s *stubTool) Execute(context.Context, map[string]any) (*tools.Result, error) {
	return s.res, s.err
}

func TestInstrumentedTool_RecordsStatus(t *testing.T) {
	m := NewMetricsCollector()

	ok := NewInstrumentedTool(&stubTool{res: &tools.Result{Success: true}}, m, nil, nil)
	if _, err := ok.Execute(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	failed := NewInstrumentedTool(&stubTool{res: &tools.Result{Success: false}}, m, nil, nil)
	if _, err := failed.Execute(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	if got := counterValue(t, m, "aria_tool_executions_total",
		map[string]string{"tool": "search_tracks", "status": "success"}); got != 1 {
		t.Errorf("expected 1 success execution, got %v", got)
	}
	if got := counterValue(t, m, "aria_tool_executions_total",
		map[string]string{"tool": "search_tracks", "status": "failed"}); got != 1 {
		t.Errorf("expected 1 failed execution, got %v", got)
	}
}

// --- HealthChecker ---

func TestHealthChecker_ReadyAggregates(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("catalog", func(context.Context) error { return nil })
	h.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	status := h.CheckReady(context.Background())
	if status.Status != "degraded" {
		t.Errorf("expected degraded, got %q", status.Status)
	}
	if status.Checks["catalog"].Status != "ok" {
		t.Error("catalog check should pass")
	}
	if status.Checks["redis"].Status != "fail" {
		t.Error("redis check should fail")
	}
}

func TestHealthChecker_LivenessAlwaysOK(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("anything", func(context.Context) error { return errors.New("down") })
	if h.CheckHealth().Status != "ok" {
		t.Error("liveness must not depend on checks")
	}
}

// --- HTTP middleware ---

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetricsCollector()

	handler := HTTPMetricsMiddleware(m, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	got := counterValue(t, m, "aria_http_requests_total",
		map[string]string{"method": "GET", "path": "/test", "status_code": "200"})
	if got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	// Should not panic with nil metrics.
	handler := HTTPMetricsMiddleware(nil, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

// --- AnomalyDetector ---

func TestAnomalyDetector_NilSafe(t *testing.T) {
	var a *AnomalyDetector
	a.RecordError("x")
	a.RecordSuccess("x")
	a.RecordSpend("client", 0.01)
}
