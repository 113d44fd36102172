// Package proxy streams upstream media bytes behind short-lived tickets.
//
// A ticket is an opaque id bound to an upstream part key. Clients receive stream URLs
// carrying tickets and never see the part key or the server token.
//
// # Resolution
//
// [Proxy.Locate] resolves a ticket in three steps:
//  1. live ticket in the issuer
//  2. rating key supplied by the client, looked up in the recovery index
//  3. the same rating key resolved against the media server
//
// A locator found in step 2 or 3 is bound back under the original ticket id so a
// paused player can resume with the URL it already has.
//
// # Relay
//
// [Proxy.Stream] forwards Range, mirrors the upstream status and an allow-list of
// headers, and copies the body in fixed chunks with a flush after each one.
// The upstream read is tied to the client request context.
package proxy
