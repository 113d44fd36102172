package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/plexproxy/internal/cache"
	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/proxy"
	"github.com/desertthunder/plexproxy/internal/services"
)

// ListingTTL is how long a playlist listing is served from memory.
const ListingTTL = 30 * time.Second

// API serves the stream, playlist and art endpoints.
type API struct {
	proxy    *proxy.Proxy
	resolver services.Resolver
	fetcher  services.Fetcher
	listings *cache.Store[models.PlaylistsView]
	group    singleflight.Group
	logger   *log.Logger
}

// NewAPI creates an [API]. listings may be nil, in which case a private store is used.
func NewAPI(p *proxy.Proxy, resolver services.Resolver, fetcher services.Fetcher, listings *cache.Store[models.PlaylistsView], logger *log.Logger) *API {
	if listings == nil {
		listings = cache.New[models.PlaylistsView]()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &API{
		proxy:    p,
		resolver: resolver,
		fetcher:  fetcher,
		listings: listings,
		logger:   logger.With("component", "api"),
	}
}

// Register adds the API routes to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/api/stream/{ticket}", http.HandlerFunc(a.Stream))
	r.Handle(http.MethodGet, "/api/stream/for/{trackID}", http.HandlerFunc(a.StreamFor))
	r.Handle(http.MethodGet, "/api/playlist/{playlistID}", http.HandlerFunc(a.Playlist))
	r.Handle(http.MethodGet, "/api/playlists", http.HandlerFunc(a.Playlists))
	r.Handle(http.MethodGet, models.ArtPath, http.HandlerFunc(a.Art))
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg, ok := StatusFor(err)
	if !ok {
		a.logger.Debug("client went away", "id", RequestIDFromContext(r.Context()), "path", logPath(r.URL.Path))
		return
	}

	if status >= 500 {
		a.logger.Error("request failed", "id", RequestIDFromContext(r.Context()), "status", status, "err", err)
	} else {
		a.logger.Debug("request failed", "id", RequestIDFromContext(r.Context()), "status", status, "err", err)
	}
	writeError(w, status, msg)
}

// Stream proxies the bytes behind a ticket. fallback (or rk) names the rating key used
// to recover an expired ticket.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	ticket := r.PathValue("ticket")

	q := r.URL.Query()
	fallback := q.Get("fallback")
	if fallback == "" {
		fallback = q.Get("rk")
	}

	locator, err := a.proxy.Locate(r.Context(), ticket, fallback)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if err := a.proxy.Stream(w, r, locator); err != nil {
		a.fail(w, r, err)
	}
}

// StreamFor mints a ticket for a rating key.
func (a *API) StreamFor(w http.ResponseWriter, r *http.Request) {
	ticket, err := a.proxy.MintFor(r.Context(), r.PathValue("trackID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ticket": ticket})
}

// Playlist expands a playlist into ticket-bound tracks.
func (a *API) Playlist(w http.ResponseWriter, r *http.Request) {
	view, err := a.proxy.ExpandPlaylist(r.Context(), r.PathValue("playlistID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Playlists lists playlists of a kind, served from a short-lived cache.
//
// Concurrent misses for the same kind and size share one upstream call.
func (a *API) Playlists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind := strings.ToLower(strings.TrimSpace(q.Get("type")))
	if kind == "" {
		kind = "music"
	}

	take := services.DefaultTake
	if raw := q.Get("take"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "take must be an integer")
			return
		}
		take = n
	}
	take = services.ClampTake(take)

	key := fmt.Sprintf("playlists::%s::%d", kind, take)
	if view, ok := a.listings.Get(key); ok {
		writeJSON(w, http.StatusOK, view)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	v, err, joined := a.group.Do(key, func() (any, error) {
		if view, ok := a.listings.Get(key); ok {
			return view, nil
		}

		items, err := a.resolver.ListPlaylists(ctx, kind, take)
		if err != nil {
			return nil, err
		}

		view := models.PlaylistsView{Playlists: items, Count: len(items)}
		a.listings.Put(key, view, cache.Absolute(ListingTTL))
		return view, nil
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.logger.Debug("playlists listed", "key", key, "shared", joined)
	writeJSON(w, http.StatusOK, v.(models.PlaylistsView))
}

// Art relays cover art. path is the standard base64 of a server-relative art path.
func (a *API) Art(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}

	// An unescaped '+' arrives as a space.
	path, err := models.DecodeArtPath(strings.ReplaceAll(raw, " ", "+"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if !strings.HasPrefix(path, "/") {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}

	resp, err := a.fetcher.Open(r.Context(), path, nil)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		a.fail(w, r, &services.StatusError{StatusCode: resp.StatusCode, Path: path})
		return
	}

	proxy.CopyHeaders(w.Header(), resp)
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "image/jpeg")
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		a.logger.Debug("art copy interrupted", "id", RequestIDFromContext(r.Context()), "err", err)
	}
}

// HealthHandler reports liveness and the number of live tickets.
type HealthHandler struct {
	Tickets interface{ Live() int }
}

func (h *HealthHandler) Routes() []string {
	return []string{"GET /healthz"}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tickets": h.Tickets.Live()})
}

// StaticHandler serves files from a directory at the site root.
type StaticHandler struct {
	files http.Handler
}

func NewStaticHandler(dir string) *StaticHandler {
	return &StaticHandler{files: http.FileServer(http.Dir(dir))}
}

func (h *StaticHandler) Routes() []string {
	return []string{"GET /"}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.files.ServeHTTP(w, r)
}
