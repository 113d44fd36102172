package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/plexproxy/internal/cache"
	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/services"
	"github.com/desertthunder/plexproxy/internal/shared"
	tu "github.com/desertthunder/plexproxy/internal/testing"
	"github.com/desertthunder/plexproxy/internal/tickets"
)

const partKey = "/library/parts/7/1600000000/file.mp3"

type harness struct {
	clock    *tu.Clock
	issuer   *tickets.Issuer
	index    *tickets.RecoveryIndex
	resolver *tu.FakeResolver
	proxy    *Proxy
	front    *httptest.Server
}

// newHarness wires a proxy to upstream and exposes it at /s/{ticket} the way the API server does.
func newHarness(t *testing.T, upstream http.Handler) *harness {
	t.Helper()

	up := httptest.NewServer(upstream)
	t.Cleanup(up.Close)

	return newHarnessWithFetcher(t, services.NewUpstream(services.UpstreamOpts{BaseURL: up.URL, Token: "tok"}))
}

func newHarnessWithFetcher(t *testing.T, fetcher services.Fetcher) *harness {
	t.Helper()

	clock := tu.NewClock(time.Unix(1_700_000_000, 0))
	h := &harness{
		clock:    clock,
		issuer:   tickets.NewIssuer(cache.New[string](cache.WithClock(clock.Now)), 5*time.Minute),
		index:    tickets.NewRecoveryIndex(cache.New[string](cache.WithClock(clock.Now)), 6*time.Hour),
		resolver: &tu.FakeResolver{Tracks: map[string]string{}},
	}
	h.proxy = New(h.issuer, h.index, h.resolver, fetcher, nil)

	h.front = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ticket := strings.TrimPrefix(r.URL.Path, "/s/")
		locator, err := h.proxy.Locate(r.Context(), ticket, r.URL.Query().Get("fallback"))
		if err != nil {
			if errors.Is(err, shared.ErrTicketGone) {
				w.WriteHeader(http.StatusGone)
			}
			return
		}
		if err := h.proxy.Stream(w, r, locator); err != nil {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	t.Cleanup(h.front.Close)
	return h
}

func (h *harness) get(t *testing.T, path string, header http.Header) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, h.front.URL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp, body
}

func media() []byte {
	b := make([]byte, 1000)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// mediaServer serves media() at partKey with a few headers that must never reach clients.
func mediaServer(t *testing.T) http.Handler {
	content := media()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") != "tok" {
			t.Errorf("expected upstream token, got %q", r.Header.Get("X-Plex-Token"))
		}
		if r.URL.Path != partKey {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Set-Cookie", "session=leak")
		w.Header().Set("X-Plex-Protocol", "1.0")
		w.Header().Set("Server", "PMS")
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("ETag", `"abc"`)
		http.ServeContent(w, r, "file.mp3", time.Unix(1_600_000_000, 0), bytes.NewReader(content))
	})
}

func TestProxyStream(t *testing.T) {
	t.Run("head request skips the body", func(t *testing.T) {
		h := newHarness(t, mediaServer(t))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodHead, "/s/ticket", nil)
		if err := h.proxy.Stream(rec, req, partKey); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if rec.Header().Get("Content-Length") != "1000" {
			t.Errorf("expected Content-Length 1000, got %q", rec.Header().Get("Content-Length"))
		}
		if rec.Body.Len() != 0 {
			t.Errorf("expected no body bytes, got %d", rec.Body.Len())
		}
	})

	t.Run("live ticket", func(t *testing.T) {
		t.Run("streams full body", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))
			ticket := h.issuer.Mint(partKey)

			resp, body := h.get(t, "/s/"+ticket, nil)

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}
			if !bytes.Equal(body, media()) {
				t.Error("expected body to match upstream bytes")
			}
			if resp.Header.Get("Content-Length") != "1000" {
				t.Errorf("expected Content-Length 1000, got %q", resp.Header.Get("Content-Length"))
			}
			if resp.Header.Get("Content-Type") != "audio/mpeg" {
				t.Errorf("expected audio/mpeg, got %q", resp.Header.Get("Content-Type"))
			}
		})

		t.Run("range request is partial", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))
			ticket := h.issuer.Mint(partKey)

			resp, body := h.get(t, "/s/"+ticket, http.Header{"Range": {"bytes=100-199"}})

			if resp.StatusCode != http.StatusPartialContent {
				t.Fatalf("expected 206, got %d", resp.StatusCode)
			}
			if !bytes.Equal(body, media()[100:200]) {
				t.Errorf("expected bytes 100-199, got %d bytes", len(body))
			}
			if got := resp.Header.Get("Content-Range"); got != "bytes 100-199/1000" {
				t.Errorf("expected Content-Range, got %q", got)
			}
			if resp.Header.Get("Accept-Ranges") != "bytes" {
				t.Errorf("expected Accept-Ranges bytes, got %q", resp.Header.Get("Accept-Ranges"))
			}
		})

		t.Run("drops headers outside allow list", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))
			ticket := h.issuer.Mint(partKey)

			resp, _ := h.get(t, "/s/"+ticket, nil)

			for _, name := range []string{"Set-Cookie", "X-Plex-Protocol", "X-Plex-Token"} {
				if v := resp.Header.Get(name); v != "" {
					t.Errorf("expected %s to be dropped, got %q", name, v)
				}
			}
			if resp.Header.Get("Server") == "PMS" {
				t.Error("expected upstream Server header to be dropped")
			}
			if resp.Header.Get("Etag") != `"abc"` {
				t.Errorf("expected ETag to be forwarded, got %q", resp.Header.Get("Etag"))
			}
			if resp.Header.Get("Last-Modified") == "" {
				t.Error("expected Last-Modified to be forwarded")
			}
		})

		t.Run("mirrors upstream error status", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))
			ticket := h.issuer.Mint("/library/parts/404/missing.mp3")

			resp, _ := h.get(t, "/s/"+ticket, nil)
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("expected 404, got %d", resp.StatusCode)
			}
		})
	})

	t.Run("expired ticket", func(t *testing.T) {
		t.Run("without fallback is gone", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))
			ticket := h.issuer.Mint(partKey)
			h.clock.Advance(6 * time.Minute)

			resp, _ := h.get(t, "/s/"+ticket, nil)

			if resp.StatusCode != http.StatusGone {
				t.Errorf("expected 410, got %d", resp.StatusCode)
			}
			if h.resolver.Calls() != 0 {
				t.Errorf("expected no resolver calls, got %d", h.resolver.Calls())
			}
		})

		t.Run("unknown ticket is gone", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))

			resp, _ := h.get(t, "/s/deadbeef", nil)
			if resp.StatusCode != http.StatusGone {
				t.Errorf("expected 410, got %d", resp.StatusCode)
			}
		})

		t.Run("recovers through resolver and rebinds", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))
			h.resolver.Tracks["42"] = partKey
			ticket := h.issuer.Mint(partKey)
			h.clock.Advance(6 * time.Minute)

			resp, body := h.get(t, "/s/"+ticket+"?fallback=42", nil)

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}
			if len(body) != 1000 {
				t.Errorf("expected full body, got %d bytes", len(body))
			}
			if got, ok := h.issuer.Resolve(ticket); !ok || got != partKey {
				t.Errorf("expected ticket to be rebound, got %q (ok=%v)", got, ok)
			}
			if got, ok := h.index.Lookup("42"); !ok || got != partKey {
				t.Errorf("expected recovery index entry, got %q (ok=%v)", got, ok)
			}

			resp, _ = h.get(t, "/s/"+ticket, nil)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected rebound ticket to stream without fallback, got %d", resp.StatusCode)
			}
			if h.resolver.Calls() != 1 {
				t.Errorf("expected 1 resolver call, got %d", h.resolver.Calls())
			}
		})

		t.Run("recovers from index without resolver", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))
			h.index.Remember("42", partKey)

			resp, _ := h.get(t, "/s/"+tickets.NewID()+"?fallback=42", nil)

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200, got %d", resp.StatusCode)
			}
			if h.resolver.Calls() != 0 {
				t.Errorf("expected no resolver calls, got %d", h.resolver.Calls())
			}
		})

		t.Run("unresolvable fallback is gone", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))

			resp, _ := h.get(t, "/s/"+tickets.NewID()+"?fallback=nope", nil)
			if resp.StatusCode != http.StatusGone {
				t.Errorf("expected 410, got %d", resp.StatusCode)
			}
		})

		t.Run("repeated recovery is idempotent", func(t *testing.T) {
			h := newHarness(t, mediaServer(t))
			h.resolver.Tracks["42"] = partKey
			ticket := tickets.NewID()

			first, a := h.get(t, "/s/"+ticket+"?fallback=42", nil)
			second, b := h.get(t, "/s/"+ticket+"?fallback=42", nil)

			if first.StatusCode != http.StatusOK || second.StatusCode != http.StatusOK {
				t.Fatalf("expected 200 twice, got %d and %d", first.StatusCode, second.StatusCode)
			}
			if !bytes.Equal(a, b) {
				t.Error("expected identical bodies")
			}
		})
	})

	t.Run("upstream unreachable is bad gateway", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		url := dead.URL
		dead.Close()

		h := newHarnessWithFetcher(t, services.NewUpstream(services.UpstreamOpts{BaseURL: url}))
		ticket := h.issuer.Mint(partKey)

		resp, _ := h.get(t, "/s/"+ticket, nil)
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", resp.StatusCode)
		}
	})

	t.Run("client cancel releases upstream", func(t *testing.T) {
		released := make(chan struct{})
		h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "audio/flac")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, "first")
			w.(http.Flusher).Flush()

			<-r.Context().Done()
			close(released)
		}))
		ticket := h.issuer.Mint(partKey)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, h.front.URL+"/s/"+ticket, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}

		buf := make([]byte, len("first"))
		if _, err := io.ReadFull(resp.Body, buf); err != nil {
			t.Fatalf("expected first chunk, got %v", err)
		}
		if string(buf) != "first" {
			t.Errorf("expected first chunk, got %q", buf)
		}

		cancel()
		resp.Body.Close()

		select {
		case <-released:
		case <-time.After(5 * time.Second):
			t.Fatal("expected upstream request to be cancelled")
		}
	})
}

func TestProxyMintFor(t *testing.T) {
	t.Run("mints from resolver", func(t *testing.T) {
		h := newHarness(t, mediaServer(t))
		h.resolver.Tracks["42"] = partKey

		ticket, err := h.proxy.MintFor(context.Background(), "42")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got, ok := h.issuer.Resolve(ticket); !ok || got != partKey {
			t.Errorf("expected ticket to resolve to part key, got %q", got)
		}
	})

	t.Run("prefers recovery index", func(t *testing.T) {
		h := newHarness(t, mediaServer(t))
		h.index.Remember("42", partKey)

		if _, err := h.proxy.MintFor(context.Background(), "42"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if h.resolver.Calls() != 0 {
			t.Errorf("expected no resolver calls, got %d", h.resolver.Calls())
		}
	})

	t.Run("unknown track is not found", func(t *testing.T) {
		h := newHarness(t, mediaServer(t))

		_, err := h.proxy.MintFor(context.Background(), "missing")
		if !errors.Is(err, shared.ErrLocatorNotFound) {
			t.Errorf("expected ErrLocatorNotFound, got %v", err)
		}
	})

	t.Run("upstream status passes through", func(t *testing.T) {
		h := newHarness(t, mediaServer(t))
		h.resolver.Err = &services.StatusError{StatusCode: http.StatusServiceUnavailable}

		_, err := h.proxy.MintFor(context.Background(), "42")
		var se *services.StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected 503 StatusError, got %v", err)
		}
	})
}

func TestProxyExpandPlaylist(t *testing.T) {
	duration := int64(180000)

	t.Run("binds a ticket per track", func(t *testing.T) {
		h := newHarness(t, mediaServer(t))
		h.resolver.Playlists = map[string][]models.Track{
			"99": {
				{ID: "1", Title: "One", PartKey: "/library/parts/1/a.mp3", Thumb: "/library/metadata/1/thumb/1", DurationMS: &duration},
				{ID: "2", Title: "Two", PartKey: "/library/parts/2/b.mp3"},
			},
		}

		view, err := h.proxy.ExpandPlaylist(context.Background(), "99")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if view.Count != 2 || len(view.Tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", view.Count)
		}
		if view.Tracks[0].ID != "1" || view.Tracks[1].ID != "2" {
			t.Error("expected upstream order to be preserved")
		}

		for i, want := range []string{"/library/parts/1/a.mp3", "/library/parts/2/b.mp3"} {
			ticket := strings.TrimPrefix(view.Tracks[i].StreamURL, models.StreamPathPrefix)
			if got, ok := h.issuer.Resolve(ticket); !ok || got != want {
				t.Errorf("track %d: expected ticket to resolve to %s, got %q", i, want, got)
			}
			if strings.Contains(view.Tracks[i].StreamURL, "library") {
				t.Errorf("track %d: stream URL leaks part key: %s", i, view.Tracks[i].StreamURL)
			}
		}

		if view.Tracks[0].ArtURL == nil || !strings.HasPrefix(*view.Tracks[0].ArtURL, models.ArtPath+"?path=") {
			t.Errorf("expected art URL, got %v", view.Tracks[0].ArtURL)
		}
		if view.Tracks[1].ArtURL != nil {
			t.Error("expected nil art URL without thumb")
		}
		if got, ok := h.index.Lookup("2"); !ok || got != "/library/parts/2/b.mp3" {
			t.Errorf("expected recovery index entry, got %q", got)
		}
	})

	t.Run("empty playlist", func(t *testing.T) {
		h := newHarness(t, mediaServer(t))
		h.resolver.Playlists = map[string][]models.Track{"99": {}}

		view, err := h.proxy.ExpandPlaylist(context.Background(), "99")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if view.Count != 0 || view.Tracks == nil {
			t.Errorf("expected empty non-nil track list, got %+v", view)
		}
	})

	t.Run("resolver error passes through", func(t *testing.T) {
		h := newHarness(t, mediaServer(t))

		_, err := h.proxy.ExpandPlaylist(context.Background(), "missing")
		if !errors.Is(err, shared.ErrLocatorNotFound) {
			t.Errorf("expected ErrLocatorNotFound, got %v", err)
		}
	})
}

func TestCopyHeaders(t *testing.T) {
	t.Run("falls back to response length", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{"Content-Type": {"audio/flac"}}, ContentLength: 42}
		dst := make(http.Header)

		CopyHeaders(dst, resp)

		if dst.Get("Content-Length") != "42" {
			t.Errorf("expected Content-Length 42, got %q", dst.Get("Content-Length"))
		}
	})

	t.Run("leaves unknown length unset", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}, ContentLength: -1}
		dst := make(http.Header)

		CopyHeaders(dst, resp)

		if _, ok := dst["Content-Length"]; ok {
			t.Error("expected no Content-Length")
		}
	})

	t.Run("matches case insensitively", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{"content-range": {"bytes 0-1/2"}, "x-other": {"1"}}, ContentLength: -1}
		dst := make(http.Header)

		CopyHeaders(dst, resp)

		if dst.Get("Content-Range") != "bytes 0-1/2" {
			t.Errorf("expected content-range to be copied, got %v", dst)
		}
		if dst.Get("X-Other") != "" {
			t.Error("expected x-other to be dropped")
		}
	})
}
