// package models defines the data model for the Plex stream proxy
package models

import (
	"encoding/base64"
	"net/url"
)

const (
	// StreamPathPrefix is where ticket-bound streams are served.
	StreamPathPrefix = "/api/stream/"
	// ArtPath is where cover art is proxied.
	ArtPath = "/api/art"
)

// Track represents a playable track as reported by the media server.
type Track struct {
	ID         string `json:"id"` // Stable rating key
	Title      string `json:"title"`
	Artist     string `json:"artist"`     // grandparentTitle
	Album      string `json:"album"`      // parentTitle
	DurationMS *int64 `json:"durationMs"` // nil when the server omits it
	Thumb      string `json:"thumb"`      // Relative art path, empty when absent
	PartKey    string `json:"-"`          // Upstream locator; never exposed to clients
}

// PlaylistSummary describes one playlist in the library listing.
type PlaylistSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	PlaylistType string `json:"playlistType"`
	LeafCount    *int   `json:"leafCount"`
	DurationSec  *int   `json:"durationSec"`
}

// TrackView is the client-facing track record.
type TrackView struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	DurationMS *int64  `json:"durationMs"`
	ArtURL     *string `json:"artUrl"`
	StreamURL  string  `json:"streamUrl"`
}

// PlaylistView is the expanded playlist response.
type PlaylistView struct {
	Count  int         `json:"count"`
	Tracks []TrackView `json:"tracks"`
}

// PlaylistsView is the playlist listing response.
type PlaylistsView struct {
	Playlists []PlaylistSummary `json:"playlists"`
	Count     int               `json:"count"`
}

// NewTrackView builds the client view of t bound to ticket.
func NewTrackView(t Track, ticket string) TrackView {
	return TrackView{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		DurationMS: t.DurationMS,
		ArtURL:     ArtURL(t.Thumb),
		StreamURL:  StreamURL(ticket),
	}
}

// StreamURL returns the relative URL that streams ticket.
func StreamURL(ticket string) string {
	return StreamPathPrefix + url.PathEscape(ticket)
}

// ArtURL returns the relative art proxy URL for thumb, or nil when there is no art.
func ArtURL(thumb string) *string {
	if thumb == "" {
		return nil
	}
	u := ArtPath + "?path=" + url.QueryEscape(EncodeArtPath(thumb))
	return &u
}

// EncodeArtPath hides a relative art path behind standard base64.
func EncodeArtPath(path string) string {
	return base64.StdEncoding.EncodeToString([]byte(path))
}

// DecodeArtPath reverses [EncodeArtPath].
func DecodeArtPath(encoded string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
