// Package httpapi implements the HTTP gateway for the Aria assistant.
//
// Security:
//   - Per-client rate limiting keyed by session cookie, fingerprint fallback
//   - Request body size limits (default 1 MB)
//   - Proposals are returned as inert JSON cards; nothing executes server-side
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariahq/aria/internal/assistant"
	"github.com/ariahq/aria/internal/cache"
	"github.com/ariahq/aria/internal/identity"
	"github.com/ariahq/aria/internal/llm"
	"github.com/ariahq/aria/internal/observability"
	"github.com/ariahq/aria/internal/ratelimit"
	"github.com/ariahq/aria/internal/tools"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response shape.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	MaxRequestSize int64 // Maximum request body in bytes. 0 = 1 MB default.

	// ChatLimit is the per-client rate limit for chat turns. The session
	// cookie lifetime matches its window so an expired cookie and a reset
	// window coincide.
	ChatLimit  *ratelimit.Limiter
	ChatWindow time.Duration

	// WebSearch advertises the provider-native web search capability.
	WebSearch bool

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP gateway.
type Gateway struct {
	config     Config
	assistant  *assistant.Assistant
	respCache  *cache.ResponseCache // nil = stats endpoint reports disabled
	logger     *slog.Logger
	server     *http.Server
	okapi      *okapi.Okapi
	group      *okapi.Group
	maxBody    int64
	sseEnabled bool
}

// NewGateway creates an HTTP gateway around the assistant.
func NewGateway(cfg Config, a *assistant.Assistant, respCache *cache.ResponseCache, logger *slog.Logger) *Gateway {
	maxSize := cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:    cfg,
		assistant: a,
		respCache: respCache,
		logger:    logger,
		maxBody:   maxSize,
		okapi:     okapi.New(okapi.WithMaxMultipartMemory(maxSize)),
	}
}

// WithSSE enables the SSE streaming chat endpoint.
func (g *Gateway) WithSSE(enabled bool) *Gateway {
	g.sseEnabled = enabled
	return g
}

// WithOpenAPIDocs mounts the interactive API documentation.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Aria",
			Version: "v0.1.0",
		},
	)
	return g
}

type ctxKey int

const clientIDKey ctxKey = 0

// clientID returns the limiter identity resolved by the session middleware.
func clientID(r *http.Request) string {
	if id, ok := r.Context().Value(clientIDKey).(string); ok {
		return id
	}
	return identity.Resolve(r).ID
}

// sessionMiddleware resolves the client identity, issues the session cookie
// to first-time clients, and enforces the chat rate limit. Runs before the
// okapi router so rejected requests never reach a handler.
func (g *Gateway) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, g.maxBody)

		client := identity.Resolve(r)
		if client.Fingerprint {
			// Promote the fingerprint to a session for subsequent requests.
			// This request still limits on the fingerprint: a client that
			// discards cookies keeps counting against the same identity.
			identity.IssueCookie(w, identity.NewSessionID(), g.config.ChatWindow)
		}

		if g.config.ChatLimit != nil && r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v1/chat") {
			d := g.config.ChatLimit.Check(client.ID)
			result := "allowed"
			if !d.Allowed {
				result = "rejected"
			}
			if g.config.Metrics != nil {
				g.config.Metrics.RateLimitDecisionsTotal.WithLabelValues("chat", result).Inc()
			}
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(d.Remaining)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(ErrorBody{Error: "rate limit exceeded"})
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIDKey, client.ID)))
	})
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}
	g.okapi.UseMiddleware(g.sessionMiddleware)

	g.group = g.okapi.Group("/v1")

	g.group.Post("/chat", g.handleChat,
		okapi.DocSummary("Send a message to the assistant"),
		okapi.DocTags("Chat"),
		okapi.DocRequestBody(ChatRequest{}),
		okapi.DocResponse(ChatResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/cache/stats", g.handleCacheStats,
		okapi.DocSummary("Response cache counters"),
		okapi.DocTags("Cache"),
		okapi.DocResponse(CacheStatsResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	if g.sseEnabled {
		g.group.Post("/chat/stream", g.handleChatStream,
			okapi.DocSummary("Stream a chat response via SSE"),
			okapi.DocTags("Chat"),
			okapi.DocRequestBody(ChatRequest{}),
			okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
		)
	}

	// Observability endpoints (no session required).
	g.okapi.Get("/healthz", g.handleLiveness,
		okapi.DocSummary("Liveness probe"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)
	g.okapi.Get("/readyz", g.handleReadiness,
		okapi.DocSummary("Readiness probe"),
		okapi.DocTags("Health"),
	)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// HistoryMessage is one prior conversation turn.
type HistoryMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is the JSON body for POST /v1/chat.
type ChatRequest struct {
	Message  string           `json:"message"`
	History  []HistoryMessage `json:"history,omitempty"`
	Provider string           `json:"provider,omitempty"` // Force a specific backend.
}

// ChatResponse is the JSON response for POST /v1/chat. Proposals are
// approval-gated action cards; the client renders them for confirmation
// before anything takes effect.
type ChatResponse struct {
	Message       string  `json:"message"`
	Proposals     []any   `json:"proposals,omitempty"`
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	TokensUsed    int     `json:"tokens_used,omitempty"`
	CostUSD       float64 `json:"cost_usd,omitempty"`
	Cached        bool    `json:"cached,omitempty"`
	CorrelationID string  `json:"correlation_id"`
}

func (g *Gateway) handleChat(c *okapi.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.AbortBadRequest("message is required")
	}

	correlationID := uuid.New().String()

	g.logger.Info("chat turn",
		slog.String("client_id", clientID(c.Request())),
		slog.String("correlation_id", correlationID),
		slog.Int("history_len", len(req.History)),
	)

	out, err := g.assistant.Chat(c.Context(), chatInput(req, g.config.WebSearch))
	if err != nil {
		g.logger.Error("chat turn failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("processing failed")
	}

	resp := ChatResponse{
		Message:       out.Message,
		Provider:      string(out.Provider),
		Model:         out.Model,
		TokensUsed:    out.Tokens,
		CostUSD:       out.CostUSD,
		Cached:        out.Cached,
		CorrelationID: correlationID,
	}
	for _, p := range out.Proposals {
		resp.Proposals = append(resp.Proposals, p)
	}
	return c.OK(resp)
}

// SSEEvent is one server-sent event in a streamed chat response.
type SSEEvent struct {
	Type     string `json:"type"`               // "text", "proposal", "done", "error"
	Content  string `json:"content,omitempty"`  // Text content.
	Proposal any    `json:"proposal,omitempty"` // Proposal card for proposal events.
}

// handleChatStream handles POST /v1/chat/stream with SSE responses.
// Runs the assistant and streams the result as server-sent events.
func (g *Gateway) handleChatStream(c *okapi.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.AbortBadRequest("message is required")
	}

	// Process first; the full result streams as events.
	out, err := g.assistant.Chat(c.Context(), chatInput(req, g.config.WebSearch))
	if err != nil {
		c.SSEvent("error", SSEEvent{Type: "error", Content: "processing failed"})
		return nil
	}

	// Proposals first, then the final text.
	for _, p := range out.Proposals {
		c.SSEvent("proposal", SSEEvent{Type: "proposal", Proposal: p})
	}
	if out.Message != "" {
		c.SSEvent("text", SSEEvent{Type: "text", Content: out.Message})
	}
	c.SSEvent("done", SSEEvent{Type: "done"})
	return nil
}

// chatInput converts an HTTP chat request into assistant input.
func chatInput(req ChatRequest, webSearch bool) assistant.Input {
	history := make([]llm.Message, 0, len(req.History))
	for _, m := range req.History {
		role := llm.RoleUser
		if m.Role == "assistant" {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}
	return assistant.Input{
		Message:          req.Message,
		History:          history,
		ProviderOverride: llm.ProviderID(req.Provider),
		Capabilities:     tools.Capabilities{WebSearch: webSearch},
	}
}

// CacheStatsResponse is the JSON response for GET /v1/cache/stats.
type CacheStatsResponse struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Writes    uint64  `json:"writes"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
	Entries   int     `json:"entries"`
}

func (g *Gateway) handleCacheStats(c *okapi.Context) error {
	if g.respCache == nil {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "response cache disabled"})
	}
	m := g.respCache.Metrics()
	return c.OK(CacheStatsResponse{
		Hits:      m.Hits,
		Misses:    m.Misses,
		Writes:    m.Writes,
		Evictions: m.Evictions,
		HitRate:   m.HitRate(),
		Entries:   g.respCache.Len(),
	})
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
