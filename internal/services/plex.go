package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/shared"
)

const (
	DefaultTake = 200
	MaxTake     = 1000
)

// PlexService resolves track and playlist metadata against a Plex Media Server.
type PlexService struct {
	*Upstream
	limiter *rate.Limiter
	timeout time.Duration
}

// PlexOpts configures [NewPlexService].
type PlexOpts struct {
	UpstreamOpts

	// MetadataRPS caps metadata requests per second. Zero disables limiting.
	MetadataRPS float64

	// Timeout bounds each metadata call. Streams are not affected.
	Timeout time.Duration
}

// NewPlexService creates a [PlexService].
func NewPlexService(opts PlexOpts) *PlexService {
	svc := &PlexService{Upstream: NewUpstream(opts.UpstreamOpts), timeout: opts.Timeout}
	if opts.MetadataRPS > 0 {
		burst := max(int(opts.MetadataRPS), 1)
		svc.limiter = rate.NewLimiter(rate.Limit(opts.MetadataRPS), burst)
	}
	return svc
}

type plexResponse struct {
	MediaContainer *plexContainer `json:"MediaContainer"`
}

// plexContainer keeps entries raw so one malformed entry cannot fail the whole document.
type plexContainer struct {
	Metadata []json.RawMessage `json:"Metadata"`
}

type plexMetadata struct {
	RatingKey        string          `json:"ratingKey"`
	Type             string          `json:"type"`
	Title            string          `json:"title"`
	GrandparentTitle string          `json:"grandparentTitle"`
	ParentTitle      string          `json:"parentTitle"`
	Duration         json.RawMessage `json:"duration"`
	Thumb            string          `json:"thumb"`
	PlaylistType     string          `json:"playlistType"`
	LeafCount        json.RawMessage `json:"leafCount"`
	Media            []plexMedia     `json:"Media"`
}

type plexMedia struct {
	Part []plexPart `json:"Part"`
}

type plexPart struct {
	Key string `json:"key"`
}

func container(doc plexResponse) (*plexContainer, bool) {
	return doc.MediaContainer, doc.MediaContainer != nil
}

func firstMetadata(c *plexContainer) (plexMetadata, bool) {
	if c == nil || len(c.Metadata) == 0 {
		return plexMetadata{}, false
	}
	return decodeMetadata(c.Metadata[0])
}

func decodeMetadata(raw json.RawMessage) (plexMetadata, bool) {
	var m plexMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return plexMetadata{}, false
	}
	return m, true
}

// entries decodes every well-formed metadata entry, dropping the rest.
func entries(c *plexContainer) []plexMetadata {
	out := make([]plexMetadata, 0, len(c.Metadata))
	for _, raw := range c.Metadata {
		if m, ok := decodeMetadata(raw); ok {
			out = append(out, m)
		}
	}
	return out
}

func firstMedia(m plexMetadata) (plexMedia, bool) {
	if len(m.Media) == 0 {
		return plexMedia{}, false
	}
	return m.Media[0], true
}

func firstPart(m plexMedia) (plexPart, bool) {
	if len(m.Part) == 0 {
		return plexPart{}, false
	}
	return m.Part[0], true
}

func partKey(p plexPart) (string, bool) {
	return p.Key, p.Key != ""
}

// locator walks Media[0].Part[0].key of a metadata entry.
func locator(m plexMetadata) (string, bool) {
	media, ok := firstMedia(m)
	if !ok {
		return "", false
	}
	part, ok := firstPart(media)
	if !ok {
		return "", false
	}
	return partKey(part)
}

// durationMS returns nil for absent or non-integral durations.
func durationMS(raw json.RawMessage) *int64 {
	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return nil
	}
	v, err := n.Int64()
	if err != nil {
		return nil
	}
	return &v
}

// optionalInt returns nil unless raw is a JSON integer.
func optionalInt(raw json.RawMessage) *int {
	ms := durationMS(raw)
	if ms == nil {
		return nil
	}
	v := int(*ms)
	return &v
}

func (s *PlexService) metadata(ctx context.Context, path string) (plexResponse, error) {
	var doc plexResponse

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return doc, err
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err := s.getJSON(ctx, path, &doc)
	return doc, err
}

// ResolveTrackLocator implements [Resolver].
func (s *PlexService) ResolveTrackLocator(ctx context.Context, trackID string) (string, error) {
	if trackID == "" {
		return "", fmt.Errorf("%w: empty track id", shared.ErrLocatorNotFound)
	}

	doc, err := s.metadata(ctx, "/library/metadata/"+url.PathEscape(trackID))
	if err != nil {
		return "", err
	}

	c, ok := container(doc)
	if !ok {
		return "", fmt.Errorf("%w: track %s has no container", shared.ErrLocatorNotFound, trackID)
	}
	m, ok := firstMetadata(c)
	if !ok {
		return "", fmt.Errorf("%w: track %s has no metadata", shared.ErrLocatorNotFound, trackID)
	}
	key, ok := locator(m)
	if !ok {
		return "", fmt.Errorf("%w: track %s has no playable part", shared.ErrLocatorNotFound, trackID)
	}
	return key, nil
}

// ExpandPlaylist implements [Resolver].
func (s *PlexService) ExpandPlaylist(ctx context.Context, playlistID string) ([]models.Track, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: empty playlist id", shared.ErrLocatorNotFound)
	}

	doc, err := s.metadata(ctx, "/playlists/"+url.PathEscape(playlistID)+"/items")
	if err != nil {
		return nil, err
	}

	c, ok := container(doc)
	if !ok {
		return nil, fmt.Errorf("%w: playlist %s has no container", shared.ErrLocatorNotFound, playlistID)
	}

	items := entries(c)
	tracks := make([]models.Track, 0, len(items))
	for _, m := range items {
		if m.Type != "" && m.Type != "track" {
			continue
		}
		if m.RatingKey == "" {
			continue
		}
		key, ok := locator(m)
		if !ok {
			continue
		}

		tracks = append(tracks, models.Track{
			ID:         m.RatingKey,
			Title:      m.Title,
			Artist:     m.GrandparentTitle,
			Album:      m.ParentTitle,
			DurationMS: durationMS(m.Duration),
			Thumb:      m.Thumb,
			PartKey:    key,
		})
	}
	return tracks, nil
}

// PlaylistType maps a listing kind to the playlistType query value.
//
// "all" maps to the empty string (no filter); unknown kinds fall back to audio.
func PlaylistType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "video":
		return "video"
	case "photo":
		return "photo"
	case "all":
		return ""
	default:
		return "audio"
	}
}

// ClampTake bounds take to [1, MaxTake], substituting [DefaultTake] for zero or less.
func ClampTake(take int) int {
	if take <= 0 {
		return DefaultTake
	}
	return min(take, MaxTake)
}

// ListPlaylists implements [Resolver].
func (s *PlexService) ListPlaylists(ctx context.Context, kind string, take int) ([]models.PlaylistSummary, error) {
	take = ClampTake(take)

	q := url.Values{}
	if pt := PlaylistType(kind); pt != "" {
		q.Set("playlistType", pt)
	}
	q.Set("X-Plex-Container-Start", "0")
	q.Set("X-Plex-Container-Size", strconv.Itoa(take))

	doc, err := s.metadata(ctx, "/playlists?"+q.Encode())
	if err != nil {
		return nil, err
	}

	c, ok := container(doc)
	if !ok {
		return []models.PlaylistSummary{}, nil
	}

	items := entries(c)
	out := make([]models.PlaylistSummary, 0, len(items))
	for _, m := range items {
		if m.RatingKey == "" || m.Title == "" {
			continue
		}

		summary := models.PlaylistSummary{
			ID:           m.RatingKey,
			Title:        m.Title,
			PlaylistType: m.PlaylistType,
			LeafCount:    optionalInt(m.LeafCount),
		}
		if ms := durationMS(m.Duration); ms != nil {
			sec := int(*ms / 1000)
			summary.DurationSec = &sec
		}

		out = append(out, summary)
		if len(out) == take {
			break
		}
	}
	return out, nil
}
