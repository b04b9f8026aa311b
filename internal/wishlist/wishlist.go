// Package wishlist persists the per-user set of starred task IDs. It is a
// local overlay over the server's starredBy state: the union of both decides
// whether a task renders as starred, so the cache can only add apparent star
// state, never remove server-confirmed state.
package wishlist

import (
	"encoding/json"
	"sort"
	"sync"

	"wishdo/internal/kv"
	"wishdo/internal/utils"
)

const keyPrefix = "wishlist_ids_"

// AnonymousUser keys wishlist entries created without a session.
const AnonymousUser = "anonymous"

// Cache is a per-user starred-ID store over an injected key-value store.
// Reads are read-through (empty set on absence or corrupt data) and writes
// persist immediately. Mutations notify subscribers.
type Cache struct {
	store kv.Store

	mu      sync.Mutex
	subs    map[int]func()
	nextSub int
}

// New creates a wishlist cache over the given store.
func New(store kv.Store) *Cache {
	return &Cache{
		store: store,
		subs:  make(map[int]func()),
	}
}

// cacheKey returns the store key for a user, falling back to the anonymous
// bucket when no user is set.
func cacheKey(userID string) string {
	if userID == "" {
		userID = AnonymousUser
	}
	return keyPrefix + userID
}

// IDs returns the starred task IDs for a user. Missing or unreadable
// entries yield an empty set.
func (c *Cache) IDs(userID string) map[string]struct{} {
	ids := make(map[string]struct{})

	raw, ok, err := c.store.Get(cacheKey(userID))
	if err != nil {
		utils.Warnf("wishlist cache read failed: %v", err)
		return ids
	}
	if !ok {
		return ids
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		utils.Warnf("wishlist cache entry corrupt, treating as empty: %v", err)
		return ids
	}
	for _, id := range list {
		ids[id] = struct{}{}
	}
	return ids
}

// Has reports whether the user's wishlist contains the task.
func (c *Cache) Has(userID, taskID string) bool {
	_, ok := c.IDs(userID)[taskID]
	return ok
}

// SetStarred adds or removes a task from the user's wishlist and persists
// the result immediately.
func (c *Cache) SetStarred(userID, taskID string, starred bool) error {
	ids := c.IDs(userID)
	if starred {
		ids[taskID] = struct{}{}
	} else {
		delete(ids, taskID)
	}

	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Strings(list)

	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if err := c.store.Set(cacheKey(userID), string(raw)); err != nil {
		return err
	}

	c.notify()
	return nil
}

// Add stars a task in the user's wishlist.
func (c *Cache) Add(userID, taskID string) error {
	return c.SetStarred(userID, taskID, true)
}

// Remove unstars a task in the user's wishlist.
func (c *Cache) Remove(userID, taskID string) error {
	return c.SetStarred(userID, taskID, false)
}

// Subscribe registers a change callback and returns its unsubscribe handle.
// Callbacks run synchronously on the mutating goroutine.
func (c *Cache) Subscribe(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// notify invokes all subscribers.
func (c *Cache) notify() {
	c.mu.Lock()
	subs := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
