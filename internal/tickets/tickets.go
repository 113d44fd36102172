// Package tickets mints short-lived stream tickets and keeps the longer-lived recovery index.
//
// Both are views over the same value space (upstream part keys) stored in two
// [cache.Store] instances with different expiry policies:
//
//   - [Issuer] : random ticket id → part key, absolute TTL (default 5 minutes)
//   - [RecoveryIndex] : rating key → part key, sliding TTL (default 6 hours)
package tickets

import (
	"encoding/hex"
	"time"

	"github.com/desertthunder/plexproxy/internal/cache"
	"github.com/google/uuid"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultRecoveryTTL = 6 * time.Hour
)

// Issuer mints and resolves tickets.
type Issuer struct {
	store *cache.Store[string]
	ttl   time.Duration
}

// NewIssuer creates an [Issuer] over store. A non-positive ttl selects [DefaultTTL].
func NewIssuer(store *cache.Store[string], ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{store: store, ttl: ttl}
}

// TTL returns the lifetime given to tickets minted without an explicit ttl.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Mint binds target to a fresh ticket with the default TTL.
func (i *Issuer) Mint(target string) string {
	return i.MintTTL(target, i.ttl)
}

// MintTTL binds target to a fresh ticket that expires after ttl.
//
// Ids carry the 122 random bits of a v4 UUID; collisions are not checked.
func (i *Issuer) MintTTL(target string, ttl time.Duration) string {
	id := NewID()
	i.store.Put(id, target, cache.Absolute(ttl))
	return id
}

// Bind re-mints id for target with the default TTL.
//
// Recovery keeps the id a client already holds so its URL stays valid mid-playback.
func (i *Issuer) Bind(id, target string) {
	i.store.Put(id, target, cache.Absolute(i.ttl))
}

// Resolve returns the part key bound to id. It never extends the ticket's lifetime.
func (i *Issuer) Resolve(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	return i.store.Get(id)
}

// Live counts unexpired tickets.
func (i *Issuer) Live() int {
	return i.store.Len()
}

// NewID returns a 32 character lowercase hex token backed by a v4 UUID.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// RecoveryIndex maps stable track ids to part keys.
type RecoveryIndex struct {
	store *cache.Store[string]
	ttl   time.Duration
}

// NewRecoveryIndex creates a [RecoveryIndex] over store. A non-positive ttl selects [DefaultRecoveryTTL].
func NewRecoveryIndex(store *cache.Store[string], ttl time.Duration) *RecoveryIndex {
	if ttl <= 0 {
		ttl = DefaultRecoveryTTL
	}
	return &RecoveryIndex{store: store, ttl: ttl}
}

// Remember stores or refreshes the part key for trackID.
func (r *RecoveryIndex) Remember(trackID, target string) {
	if trackID == "" || target == "" {
		return
	}
	r.store.Put(trackID, target, cache.Sliding(r.ttl))
}

// Lookup returns the part key for trackID and extends the entry's lifetime.
func (r *RecoveryIndex) Lookup(trackID string) (string, bool) {
	if trackID == "" {
		return "", false
	}
	return r.store.Get(trackID)
}
