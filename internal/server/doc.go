// Package server exposes the stream proxy over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter]
// registers method patterns on an [http.ServeMux] and wraps the whole mux with the
// middleware stack, so preflight requests and unmatched paths are logged too.
//
// Standard middleware, outermost first: [Recover], [RequestID], [Logging], [CORS].
//
// # Endpoints
//
//	GET /api/stream/{ticket}?fallback=&rk=   media bytes, Range aware
//	GET /api/stream/for/{trackID}            {"ticket": "..."}
//	GET /api/playlist/{playlistID}           {"count", "tracks"}
//	GET /api/playlists?type=&take=           {"playlists", "count"}, cached for [ListingTTL]
//	GET /api/art?path=<base64>               cover art
//	GET /healthz                             {"status": "ok", "tickets": n}
//
// # Errors
//
// [StatusFor] maps domain errors to responses: an expired ticket is 410, missing
// metadata is 404, an upstream status is mirrored and anything else is 502. Error bodies
// are {"error": "..."} and never include part keys or the server token. A client that
// disconnects gets no response at all.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler
// interface and adds routes. [HealthHandler] and [StaticHandler] register this way.
package server
