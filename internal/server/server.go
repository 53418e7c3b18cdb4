package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/voyagen/mbient/internal/blog"
	"github.com/voyagen/mbient/internal/cache"
	"github.com/voyagen/mbient/internal/collection"
	"github.com/voyagen/mbient/internal/config"
	"github.com/voyagen/mbient/internal/logger"
	"github.com/voyagen/mbient/internal/models"
	"github.com/voyagen/mbient/internal/service"
	"github.com/voyagen/mbient/internal/store"
)

// Deps are the collaborators of the HTTP API. Store, Redis and Blog may be nil.
type Deps struct {
	Ingestor   *service.PlaylistIngestor
	Collection *collection.Store
	Store      store.Store
	Redis      *cache.Redis
	Blog       *blog.Client
	Log        logger.Logger
}

// Server holds dependencies for the HTTP API.
type Server struct {
	Deps
	cfg *config.Config
	mux *http.ServeMux
}

// New creates a Server and registers routes.
func New(cfg *config.Config, d Deps) *Server {
	if d.Log == nil {
		d.Log = logger.Default
	}
	srv := &Server{Deps: d, cfg: cfg, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Playlist
	s.mux.HandleFunc("GET /api/playlist", s.handleGetPlaylist)
	s.mux.HandleFunc("POST /api/playlist", s.handleLoadPlaylist)
	s.mux.HandleFunc("POST /api/playlist/refresh", s.handleRefreshPlaylist)

	// Collection and settings
	s.mux.HandleFunc("GET /api/collection", s.handleGetCollection)
	s.mux.HandleFunc("PUT /api/collection", s.handleSaveCollection)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handleSaveSettings)

	// Stored sources
	s.mux.HandleFunc("GET /api/sources", s.handleListSources)
	s.mux.HandleFunc("GET /api/sources/channels", s.handleListSourceChannels)

	// Blog
	s.mux.HandleFunc("GET /api/posts", s.handleListPosts)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the API wrapped in the CORS and logging middleware.
func (s *Server) Handler() http.Handler {
	return withCORS(withLogging(s.Log, s))
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.Log.Errorf("server shutdown: %v", err)
		}
	}()

	s.Log.Logf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.Redis != nil {
		resp["refreshing"] = cache.IsLocked(r.Context(), s.Redis, cache.RefreshLock)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// --- playlist handlers ---

func (s *Server) handleGetPlaylist(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Ingestor.Snapshot())
}

type loadPlaylistRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleLoadPlaylist(w http.ResponseWriter, r *http.Request) {
	var req loadPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.URL == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("url is required"))
		return
	}

	if err := s.Ingestor.Load(r.Context(), req.URL); err != nil {
		s.writeLoadErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Ingestor.Snapshot())
}

func (s *Server) handleRefreshPlaylist(w http.ResponseWriter, r *http.Request) {
	src := s.Ingestor.Snapshot().SourceURL
	if src == "" {
		s.writeErr(w, http.StatusConflict, fmt.Errorf("no playlist loaded"))
		return
	}

	if s.Redis != nil {
		job := cache.RefreshJob{SourceURL: src, RequestedAt: time.Now().UTC()}
		if err := cache.Enqueue(r.Context(), s.Redis, cache.RefreshQueue, job); err != nil {
			s.writeErr(w, http.StatusInternalServerError, fmt.Errorf("enqueue refresh: %w", err))
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]any{
			"source_url": src,
			"queued":     true,
		})
		return
	}

	if err := s.Ingestor.Reload(r.Context()); err != nil {
		s.writeLoadErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Ingestor.Snapshot())
}

func (s *Server) writeLoadErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMalformedSourceURL):
		s.writeErr(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrSuperseded):
		s.writeErr(w, http.StatusConflict, err)
	case errors.Is(err, service.ErrFetchFailed):
		s.writeErr(w, http.StatusBadGateway, err)
	default:
		s.writeErr(w, http.StatusInternalServerError, err)
	}
}

// --- collection handlers ---

func (s *Server) handleGetCollection(w http.ResponseWriter, _ *http.Request) {
	menu, err := s.Collection.MenuItems()
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, menu)
}

func (s *Server) handleSaveCollection(w http.ResponseWriter, r *http.Request) {
	var items []models.CollectionItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if items == nil {
		items = []models.CollectionItem{}
	}
	saved, err := s.Collection.SaveItems(items)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	st := s.Collection.LoadSettings()
	st.AuthorizationCode = maskSecret(st.AuthorizationCode)
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var st models.Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if err := s.Collection.SaveSettings(st); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeNoContent(w)
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 8:
		return "****"
	default:
		return "****" + v[len(v)-4:]
	}
}

// --- source handlers ---

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		s.writeJSON(w, http.StatusOK, []models.Source{})
		return
	}
	sources, err := s.Store.ListSources(r.Context())
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if sources == nil {
		sources = []models.Source{}
	}
	s.writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleListSourceChannels(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("url")
	if src == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("url parameter is required"))
		return
	}
	if s.Store == nil {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("source %s not found (persistence disabled)", src))
		return
	}

	channels, err := s.Store.ListChannels(r.Context(), src)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeErr(w, http.StatusNotFound, fmt.Errorf("source %s not found", src))
			return
		}
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"source_url": src,
		"channels":   channels,
		"total":      len(channels),
	})
}

// --- blog handlers ---

type postView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
	Published string `json:"published"`
	ImageURL  string `json:"image_url,omitempty"`
	URL       string `json:"url"`
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	if s.Blog == nil {
		s.writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("blog is not configured (BLOG_ACCOUNT_ID / BLOG_SITE_ID not set)"))
		return
	}
	token := s.Collection.LoadSettings().AuthorizationCode
	if token == "" {
		s.writeErr(w, http.StatusUnauthorized, fmt.Errorf("authorization code is not set"))
		return
	}

	resp, err := s.Blog.ListPosts(r.Context(), token, 0)
	if err != nil {
		if errors.Is(err, blog.ErrUnauthorized) {
			s.writeErr(w, http.StatusUnauthorized, err)
			return
		}
		s.writeErr(w, http.StatusBadGateway, err)
		return
	}

	posts := make([]postView, 0, len(resp.Posts))
	for _, p := range resp.Posts {
		posts = append(posts, postView{
			ID:        p.ID,
			Title:     p.Title,
			Excerpt:   p.Excerpt,
			Published: blog.FormatPublished(p.FirstPublishedDate),
			ImageURL:  p.ImageURL(),
			URL:       blog.PostURL(s.cfg.BlogSiteURL, p.Slug),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"posts": posts,
		"total": resp.MetaData.Total,
	})
}

// --- helpers ---

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Errorf("writeJSON: %v", err)
	}
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.Log.Errorf("%d: %v", status, err)
	}
	s.writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}
