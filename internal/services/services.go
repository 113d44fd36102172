package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/shared"
)

// Resolver looks up upstream locators and playlist contents.
type Resolver interface {
	// ResolveTrackLocator returns the part key of the first playable part of trackID.
	// Returns [shared.ErrLocatorNotFound] when any level of the metadata is missing.
	ResolveTrackLocator(ctx context.Context, trackID string) (string, error)

	// ExpandPlaylist returns the playable tracks of a playlist in upstream order.
	// Non-track entries and tracks without a part key are skipped.
	ExpandPlaylist(ctx context.Context, playlistID string) ([]models.Track, error)

	// ListPlaylists returns up to take playlists of the given kind (music, video, photo, all).
	ListPlaylists(ctx context.Context, kind string, take int) ([]models.PlaylistSummary, error)
}

// Fetcher opens raw upstream resources.
type Fetcher interface {
	// Open issues a GET for path with the extra headers and returns once response headers
	// are read. The body is left streaming and must be closed by the caller.
	Open(ctx context.Context, path string, header http.Header) (*http.Response, error)
}

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: GET %s returned %d", shared.ErrUpstreamStatus, e.Path, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return shared.ErrUpstreamStatus
}
