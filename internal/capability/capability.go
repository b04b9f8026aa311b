// Package capability records per-host knowledge about optional API
// endpoints. Today the only flag is "star endpoint unsupported", set the
// first time a host rejects a star request with permission-denied.
package capability

import (
	"wishdo/internal/kv"
	"wishdo/internal/utils"
)

const starFlagPrefix = "no_star_endpoint_"

// Cache is a per-host capability flag store. Flags are sticky: once set
// they stay set until Clear, which is an out-of-band administrative action.
type Cache struct {
	store kv.Store
}

// New creates a capability cache over the given store.
func New(store kv.Store) *Cache {
	return &Cache{store: store}
}

// MarkStarUnsupported records that host lacks the star endpoint.
func (c *Cache) MarkStarUnsupported(host string) error {
	return c.store.Set(starFlagPrefix+host, "1")
}

// StarUnsupported reports whether host is known to lack the star endpoint.
// Read-through: absence or a read failure both mean "not flagged".
func (c *Cache) StarUnsupported(host string) bool {
	v, ok, err := c.store.Get(starFlagPrefix + host)
	if err != nil {
		utils.Warnf("capability cache read failed: %v", err)
		return false
	}
	return ok && v == "1"
}

// Clear removes the star flag for host. Nothing in the sync path calls
// this; it exists for explicit administrative resets only.
func (c *Cache) Clear(host string) error {
	return c.store.Delete(starFlagPrefix + host)
}
