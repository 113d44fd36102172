// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/shared"
)

// Clock is a manually advanced time source for TTL tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FakeResolver is a test double for services.Resolver.
//
// Tracks maps rating keys to part keys; a missing key resolves to [shared.ErrLocatorNotFound].
type FakeResolver struct {
	mu sync.Mutex

	Tracks      map[string]string
	Playlists   map[string][]models.Track
	Summaries   []models.PlaylistSummary
	Err         error
	Block       chan struct{}
	TrackCalls  int
	ExpandCalls int
	ListCalls   int
}

func (f *FakeResolver) ResolveTrackLocator(ctx context.Context, trackID string) (string, error) {
	f.mu.Lock()
	f.TrackCalls++
	block, err := f.Block, f.Err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if err != nil {
		return "", err
	}
	if key, ok := f.Tracks[trackID]; ok {
		return key, nil
	}
	return "", shared.ErrLocatorNotFound
}

func (f *FakeResolver) ExpandPlaylist(ctx context.Context, playlistID string) ([]models.Track, error) {
	f.mu.Lock()
	f.ExpandCalls++
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	tracks, ok := f.Playlists[playlistID]
	if !ok {
		return nil, shared.ErrLocatorNotFound
	}
	return tracks, nil
}

func (f *FakeResolver) ListPlaylists(ctx context.Context, kind string, take int) ([]models.PlaylistSummary, error) {
	f.mu.Lock()
	f.ListCalls++
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return f.Summaries, nil
}

// Calls returns the number of track lookups made so far.
func (f *FakeResolver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.TrackCalls
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
