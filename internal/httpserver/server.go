// Package httpserver exposes the feed generator XRPC endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/devlog-feed/internal/config"
	"github.com/blackmichael/devlog-feed/internal/domain"
	"github.com/blackmichael/devlog-feed/internal/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FeedProvider serves ranked feed pages.
type FeedProvider interface {
	FeedURI() string
	GetFeed(ctx context.Context, limit int, cursor string) (*domain.FeedPage, error)
}

// InteractionSink ingests user interaction events.
type InteractionSink interface {
	HandleEvent(ctx context.Context, ev *domain.EngagementEvent) error
}

// Server is the HTTP server that serves feed generator XRPC endpoints.
type Server struct {
	cfg          *config.Config
	feeds        FeedProvider
	interactions InteractionSink
	logger       *slog.Logger
	httpServer   *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, feeds FeedProvider, interactions InteractionSink, logger *slog.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		feeds:        feeds,
		interactions: interactions,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/did.json", s.handleDIDDoc)
	mux.HandleFunc("GET /xrpc/app.bsky.feed.describeFeedGenerator", s.handleDescribeFeedGenerator)
	mux.HandleFunc("GET /xrpc/app.bsky.feed.getFeedSkeleton", s.handleGetFeedSkeleton)
	mux.HandleFunc("POST /xrpc/app.bsky.feed.sendInteractions", s.handleSendInteractions)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDIDDoc(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]any{
		"@context": []string{"https://www.w3.org/ns/did/v1"},
		"id":       s.cfg.ServiceDID(),
		"service": []map[string]any{
			{
				"id":              "#bsky_fg",
				"type":            "BskyFeedGenerator",
				"serviceEndpoint": fmt.Sprintf("https://%s", s.cfg.Server.Hostname),
			},
		},
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDescribeFeedGenerator(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"did": s.cfg.ServiceDID(),
		"feeds": []map[string]string{
			{"uri": s.feeds.FeedURI()},
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFeedSkeleton(w http.ResponseWriter, r *http.Request) {
	feedURI := r.URL.Query().Get("feed")
	if feedURI == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "feed parameter is required")
		return
	}
	if feedURI != s.feeds.FeedURI() {
		s.logger.Warn("unknown feed requested", "feed", feedURI)
		writeError(w, http.StatusBadRequest, "UnknownFeed", "unknown feed: "+feedURI)
		return
	}

	limit := s.cfg.Feed.DefaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > s.cfg.Feed.MaxLimit {
			writeError(w, http.StatusBadRequest, "InvalidRequest",
				fmt.Sprintf("limit must be between 1 and %d", s.cfg.Feed.MaxLimit))
			return
		}
		limit = parsed
	}

	cursor := r.URL.Query().Get("cursor")

	page, err := s.feeds.GetFeed(r.Context(), limit, cursor)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed cursor")
			return
		}
		s.logger.Error("failed to get feed page",
			"limit", limit,
			"cursor", cursor,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get feed")
		return
	}

	metrics.FeedPagesServed.Inc()

	feed := make([]map[string]string, len(page.Items))
	for i, item := range page.Items {
		feed[i] = map[string]string{"post": item.URI}
	}
	resp := map[string]any{"feed": feed}
	if page.Cursor != "" {
		resp["cursor"] = page.Cursor
	}
	writeJSON(w, http.StatusOK, resp)
}

type sendInteractionsRequest struct {
	DID          string `json:"did"`
	Interactions []struct {
		Item  string `json:"item"`
		Event string `json:"event"`
	} `json:"interactions"`
}

// interactionType maps an app.bsky.feed.defs interaction event to the stored
// interaction type. Unrecognized events are skipped, not rejected.
func interactionType(event string) string {
	switch {
	case strings.HasSuffix(event, "#interactionSeen"):
		return "seen"
	case strings.HasSuffix(event, "#requestLess"):
		return "request_less"
	case strings.HasSuffix(event, "#requestMore"):
		return "request_more"
	default:
		return ""
	}
}

func (s *Server) handleSendInteractions(w http.ResponseWriter, r *http.Request) {
	var req sendInteractionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.DID == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "did is required")
		return
	}

	now := time.Now().UTC()
	for _, interaction := range req.Interactions {
		itype := interactionType(interaction.Event)
		if itype == "" || interaction.Item == "" {
			continue
		}
		ev := &domain.EngagementEvent{
			Kind:            domain.KindInteraction,
			PostURI:         interaction.Item,
			ActorDID:        req.DID,
			InteractionType: itype,
			Timestamp:       now,
		}
		if err := s.interactions.HandleEvent(r.Context(), ev); err != nil {
			s.logger.Error("failed to record interaction",
				"post_uri", interaction.Item,
				"type", itype,
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "InternalError", "failed to record interactions")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
