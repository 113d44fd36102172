package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/services"
	"github.com/desertthunder/plexproxy/internal/shared"
	"github.com/desertthunder/plexproxy/internal/tickets"
)

const chunkSize = 32 * 1024

// forwardedHeaders are the upstream response headers a client may see.
var forwardedHeaders = map[string]bool{
	"content-type":   true,
	"content-length": true,
	"accept-ranges":  true,
	"content-range":  true,
	"last-modified":  true,
	"etag":           true,
	"cache-control":  true,
}

// Proxy ties the ticket issuer, recovery index and media server together.
type Proxy struct {
	issuer   *tickets.Issuer
	index    *tickets.RecoveryIndex
	resolver services.Resolver
	fetcher  services.Fetcher
	logger   *log.Logger
}

// New creates a [Proxy]. A nil logger discards output.
func New(issuer *tickets.Issuer, index *tickets.RecoveryIndex, resolver services.Resolver, fetcher services.Fetcher, logger *log.Logger) *Proxy {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Proxy{
		issuer:   issuer,
		index:    index,
		resolver: resolver,
		fetcher:  fetcher,
		logger:   logger.With("component", "proxy"),
	}
}

// Live reports the number of unexpired tickets.
func (p *Proxy) Live() int {
	return p.issuer.Live()
}

// Locate returns the part key behind ticket, recovering through fallback when the
// ticket has expired.
//
// Returns [shared.ErrTicketGone] when neither path yields a locator. Context errors are
// returned as-is.
func (p *Proxy) Locate(ctx context.Context, ticket, fallback string) (string, error) {
	if locator, ok := p.issuer.Resolve(ticket); ok {
		return locator, nil
	}

	if fallback == "" {
		return "", shared.ErrTicketGone
	}

	locator, err := p.recover(ctx, fallback)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		p.logger.Debug("recovery failed", "ticket", shared.ShortID(ticket), "track", fallback, "err", err)
		return "", shared.ErrTicketGone
	}

	p.issuer.Bind(ticket, locator)
	p.logger.Debug("ticket recovered", "ticket", shared.ShortID(ticket), "track", fallback)
	return locator, nil
}

// recover finds the locator for trackID in the index, then upstream.
func (p *Proxy) recover(ctx context.Context, trackID string) (string, error) {
	if locator, ok := p.index.Lookup(trackID); ok {
		return locator, nil
	}

	locator, err := p.resolver.ResolveTrackLocator(ctx, trackID)
	if err != nil {
		return "", err
	}
	p.index.Remember(trackID, locator)
	return locator, nil
}

// MintFor issues a fresh ticket for a known track.
func (p *Proxy) MintFor(ctx context.Context, trackID string) (string, error) {
	locator, err := p.recover(ctx, trackID)
	if err != nil {
		return "", err
	}
	return p.issuer.Mint(locator), nil
}

// ExpandPlaylist resolves a playlist into ticket-bound track views in upstream order.
func (p *Proxy) ExpandPlaylist(ctx context.Context, playlistID string) (models.PlaylistView, error) {
	tracks, err := p.resolver.ExpandPlaylist(ctx, playlistID)
	if err != nil {
		return models.PlaylistView{}, err
	}

	views := make([]models.TrackView, 0, len(tracks))
	for _, t := range tracks {
		p.index.Remember(t.ID, t.PartKey)
		views = append(views, models.NewTrackView(t, p.issuer.Mint(t.PartKey)))
	}

	p.logger.Debug("playlist expanded", "playlist", playlistID, "tracks", len(views))
	return models.PlaylistView{Count: len(views), Tracks: views}, nil
}

// Stream relays the upstream resource at locator to w.
//
// HEAD requests get the mirrored status and headers without a body.
// A non-nil error means nothing has been written to w. Once the upstream status has
// been mirrored, copy failures (usually the client going away) are logged and Stream
// returns nil.
func (p *Proxy) Stream(w http.ResponseWriter, r *http.Request, locator string) error {
	header := make(http.Header)
	if rng := r.Header.Get("Range"); rng != "" {
		header.Set("Range", rng)
	}

	resp, err := p.fetcher.Open(r.Context(), locator, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	CopyHeaders(w.Header(), resp)
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return nil
	}

	n, err := io.CopyBuffer(&flushWriter{w: w, rc: http.NewResponseController(w)}, resp.Body, make([]byte, chunkSize))
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || r.Context().Err() != nil:
		p.logger.Debug("client went away", "bytes", n)
	default:
		p.logger.Warn("stream interrupted", "bytes", n, "err", err)
	}
	return nil
}

// CopyHeaders copies the allow-listed headers of resp into dst.
//
// Content-Length falls back to resp.ContentLength when the header itself is absent.
func CopyHeaders(dst http.Header, resp *http.Response) {
	for k, vs := range resp.Header {
		if !forwardedHeaders[strings.ToLower(k)] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}

	if dst.Get("Content-Length") == "" && resp.ContentLength >= 0 {
		dst.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
}

// flushWriter pushes each chunk to the client as soon as it is written.
type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := f.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}
