// Package web serves the layerlink JSON API over HTTP, plus a websocket
// feed that pushes every accepted link rewrite to connected clients.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/amche/layerlink/internal/domain/layer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// API is the surface the server needs from the application. The app package
// implements it; keeping the interface here avoids a dependency cycle.
type API interface {
	HealthSnapshot() HealthResult
	AtlasList() []AtlasResult
	AtlasLayers(atlasID string) []*layer.Descriptor
	AtlasMetadata(atlasID string) (AtlasResult, bool)
	ContainsPoint(atlasID string, lng, lat float64) bool
	Layer(id, contextAtlas string) *layer.Descriptor
	Search(term, excludeAtlas string) []*layer.Descriptor
	LinkSnapshot() LinkResult
	ApplyLink(text string) LinkResult
	SetLayerState(id string, checked bool, opacity *float64) bool
	OnRewrite(fn func(text string))
}

// HealthResult reports daemon status for GET /api/health.
type HealthResult struct {
	Status        string `json:"status"`
	Phase         string `json:"phase"`
	Atlas         string `json:"atlas"`
	KnownAtlases  int    `json:"knownAtlases"`
	LoadedAtlases int    `json:"loadedAtlases"`
	Layers        int    `json:"layers"`
}

// AtlasResult is one atlas in API responses.
type AtlasResult struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	Color          string    `json:"color,omitempty"`
	AreaOfInterest string    `json:"areaOfInterest,omitempty"`
	Bbox           []float64 `json:"bbox,omitempty"` // west, south, east, north
	Loaded         bool      `json:"loaded"`
	Layers         int       `json:"layers"`
}

// LinkResult is the shareable link state: the layers parameter text and the
// ids the last application had to drop.
type LinkResult struct {
	Layers  string   `json:"layers"`
	Dropped []string `json:"dropped,omitempty"`
}

// AtlasListResult wraps GET /api/atlases.
type AtlasListResult struct {
	Atlases []AtlasResult `json:"atlases"`
	Count   int           `json:"count"`
}

// LayersResult wraps descriptor list responses.
type LayersResult struct {
	Layers []*layer.Descriptor `json:"layers"`
	Count  int                 `json:"count"`
}

// ContainsResult wraps GET /api/atlases/{id}/contains.
type ContainsResult struct {
	Contains bool `json:"contains"`
}

type linkRequest struct {
	Layers string `json:"layers"`
}

type stateRequest struct {
	Checked bool     `json:"checked"`
	Opacity *float64 `json:"opacity"`
}

type linkEvent struct {
	Layers string `json:"layers"`
}

// Server serves the JSON API and the websocket link feed.
type Server struct {
	api      API
	log      *zap.Logger
	listener net.Listener
	httpSrv  *http.Server
	addr     string
	stopOnce sync.Once

	upgrader websocket.Upgrader

	connMu sync.Mutex
	conns  map[*websocket.Conn]bool
}

// NewServer creates an HTTP server around the application API.
func NewServer(api API, log *zap.Logger) *Server {
	return &Server{
		api: api,
		log: log.Named("web"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the daemon binds localhost; cross-origin pages may talk to it
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]bool),
	}
}

// Start begins listening on addr and registers the rewrite broadcast.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.addr = ln.Addr().String()

	s.httpSrv = &http.Server{Handler: s.router()}
	s.api.OnRewrite(s.broadcastLink)

	go s.httpSrv.Serve(ln)
	s.log.Info("api listening", zap.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts down the HTTP server. Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.connMu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.conns = make(map[*websocket.Conn]bool)
		s.connMu.Unlock()

		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.httpSrv.Shutdown(ctx)
		}
	})
}

// Addr returns the bound address, useful when addr was ":0".
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/atlases", s.handleAtlases)
		r.Route("/atlases/{atlasID}", func(r chi.Router) {
			r.Get("/layers", s.handleAtlasLayers)
			r.Get("/metadata", s.handleAtlasMetadata)
			r.Get("/contains", s.handleContains)
		})
		r.Get("/layers/{layerID}", s.handleLayer)
		r.Post("/layers/{layerID}/state", s.handleLayerState)
		r.Get("/search", s.handleSearch)
		r.Get("/link", s.handleGetLink)
		r.Post("/link", s.handlePostLink)
	})
	r.Get("/ws", s.handleWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.api.HealthSnapshot())
}

func (s *Server) handleAtlases(w http.ResponseWriter, r *http.Request) {
	atlases := s.api.AtlasList()
	writeJSON(w, http.StatusOK, AtlasListResult{Atlases: atlases, Count: len(atlases)})
}

func (s *Server) handleAtlasLayers(w http.ResponseWriter, r *http.Request) {
	layers := s.api.AtlasLayers(chi.URLParam(r, "atlasID"))
	writeJSON(w, http.StatusOK, LayersResult{Layers: layers, Count: len(layers)})
}

func (s *Server) handleAtlasMetadata(w http.ResponseWriter, r *http.Request) {
	md, ok := s.api.AtlasMetadata(chi.URLParam(r, "atlasID"))
	if !ok {
		http.Error(w, `{"error":"atlas not loaded"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleContains(w http.ResponseWriter, r *http.Request) {
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if errLng != nil || errLat != nil {
		http.Error(w, `{"error":"lng and lat query parameters required"}`, http.StatusBadRequest)
		return
	}
	contains := s.api.ContainsPoint(chi.URLParam(r, "atlasID"), lng, lat)
	writeJSON(w, http.StatusOK, ContainsResult{Contains: contains})
}

func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	d := s.api.Layer(chi.URLParam(r, "layerID"), r.URL.Query().Get("atlas"))
	if d == nil {
		http.Error(w, `{"error":"unknown layer"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleLayerState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid state body"}`, http.StatusBadRequest)
		return
	}
	if !s.api.SetLayerState(chi.URLParam(r, "layerID"), req.Checked, req.Opacity) {
		http.Error(w, `{"error":"unknown layer"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	hits := s.api.Search(r.URL.Query().Get("q"), r.URL.Query().Get("exclude"))
	writeJSON(w, http.StatusOK, LayersResult{Layers: hits, Count: len(hits)})
}

func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.api.LinkSnapshot())
}

func (s *Server) handlePostLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid link body"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.api.ApplyLink(req.Layers))
}

// handleWS upgrades the connection and streams link rewrites. The current
// link text is pushed immediately so a fresh client never starts blank.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	snap := s.api.LinkSnapshot()

	s.connMu.Lock()
	s.conns[conn] = true
	err = conn.WriteJSON(linkEvent{Layers: snap.Layers})
	s.connMu.Unlock()
	if err != nil {
		s.dropConn(conn)
		return
	}

	go s.readUntilClose(conn)
}

// readUntilClose drains incoming frames; the feed is one-way and a read
// error is the close signal.
func (s *Server) readUntilClose(conn *websocket.Conn) {
	defer s.dropConn(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) dropConn(conn *websocket.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
	conn.Close()
}

func (s *Server) broadcastLink(text string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteJSON(linkEvent{Layers: text}); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
