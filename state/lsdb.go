package state

import (
	"maps"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// LinkStateDatabase maps an origin router to the newest LSP seen from it.
// It is owned by exactly one router and only ever stores and returns copies.
type LinkStateDatabase struct {
	cache *ttlcache.Cache[NodeId, LSP]
	// installed tracks every origin put into the cache, including ones that have since aged out
	installed map[NodeId]struct{}
}

// NewLinkStateDatabase creates a database whose foreign LSPs expire after
// maxAge. A non-positive maxAge disables aging.
func NewLinkStateDatabase(maxAge time.Duration) *LinkStateDatabase {
	ttl := maxAge
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	return &LinkStateDatabase{
		cache: ttlcache.New[NodeId, LSP](
			ttlcache.WithTTL[NodeId, LSP](ttl),
			ttlcache.WithDisableTouchOnHit[NodeId, LSP](),
		),
		installed: make(map[NodeId]struct{}),
	}
}

// Install stores a copy of lsp, replacing any previous entry for its origin.
// Self-originated LSPs never age out.
func (db *LinkStateDatabase) Install(lsp LSP, self bool) {
	ttl := ttlcache.DefaultTTL
	if self {
		ttl = ttlcache.NoTTL
	}
	db.cache.Set(lsp.Origin, lsp.Clone(), ttl)
	db.installed[lsp.Origin] = struct{}{}
}

func (db *LinkStateDatabase) Get(origin NodeId) (LSP, bool) {
	item := db.cache.Get(origin)
	if item == nil || item.IsExpired() {
		return LSP{}, false
	}
	return item.Value().Clone(), true
}

func (db *LinkStateDatabase) Seqno(origin NodeId) (uint64, bool) {
	item := db.cache.Get(origin)
	if item == nil || item.IsExpired() {
		return 0, false
	}
	return item.Value().Seqno, true
}

// Expire drops aged LSPs and returns their origins, sorted.
func (db *LinkStateDatabase) Expire() []NodeId {
	expired := make([]NodeId, 0)
	for origin := range db.installed {
		if item := db.cache.Get(origin); item == nil || item.IsExpired() {
			expired = append(expired, origin)
			delete(db.installed, origin)
		}
	}
	db.cache.DeleteExpired()
	slices.Sort(expired)
	return expired
}

// Snapshot returns a deep copy of every live entry.
func (db *LinkStateDatabase) Snapshot() map[NodeId]LSP {
	out := make(map[NodeId]LSP, db.cache.Len())
	db.cache.Range(func(item *ttlcache.Item[NodeId, LSP]) bool {
		if !item.IsExpired() {
			out[item.Key()] = item.Value().Clone()
		}
		return true
	})
	return out
}

// Origins returns the origins of all live entries, sorted.
func (db *LinkStateDatabase) Origins() []NodeId {
	return slices.Sorted(maps.Keys(db.Snapshot()))
}

func (db *LinkStateDatabase) Len() int {
	return len(db.Snapshot())
}
