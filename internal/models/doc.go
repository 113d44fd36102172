// Package models defines the track and playlist records shared by the Plex client, the stream proxy and the CLI.
//
// The package contains two categories of types:
//
// 1. Upstream records: what the media server told us
//   - [Track] : a playable track including its upstream part key
//   - [PlaylistSummary] : a playlist entry from the library listing
//
// 2. Client views: what browsers are allowed to see
//   - [TrackView] : a track whose stream is reachable only through a ticket
//   - [PlaylistView] : the expanded playlist response
//   - [PlaylistsView] : the playlist listing response
//
// Views never carry part keys, upstream URLs or credentials.
package models
