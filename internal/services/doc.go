// Package services talks to the Plex Media Server on behalf of the proxy.
//
// # Capabilities
//
// Two small interfaces describe what the rest of the module needs:
//   - [Resolver] turns rating keys and playlist ids into part keys (locators)
//   - [Fetcher] opens raw upstream resources (media parts, artwork) with the body left streaming
//
// [PlexService] implements both on top of [Upstream].
//
// # Credentials
//
// [Upstream] attaches X-Plex-Token and the client identification headers to every
// request. No other package sees the token.
//
// # Metadata Extraction
//
// PMS answers with a MediaContainer whose entries nest Media and Part arrays. The part key
// is reached through firstMetadata, firstMedia, firstPart and partKey; any missing level
// reports [shared.ErrLocatorNotFound] instead of failing loudly.
//
// # Error Handling
//   - [*StatusError] : PMS answered with a non-2xx status (wraps [shared.ErrUpstreamStatus])
//   - [shared.ErrLocatorNotFound] : metadata missing or malformed
//   - [shared.ErrUpstreamUnavailable] : PMS could not be reached
//
// Metadata calls wait on a token-bucket limiter when MetadataRPS is set. Streams never do.
package services
