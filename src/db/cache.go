package db

import (
	"fmt"
	"sync"
	"time"

	"fincil-server/src/models"

	"github.com/dgraph-io/ristretto/v2"
)

// ProfileTTL bounds how long a snapshot can be served without a database read.
const ProfileTTL = 5 * time.Minute

// ProfileCache keeps profile snapshots in memory so a query does not hit the
// database twice for the same user. Writers must call Invalidate after any
// change to a profile row.
//
// A reader takes Generation before its database read and hands it back to
// Set. Set drops the row when an Invalidate or ClearAll happened in between,
// so a read that raced a write can never be cached.
type ProfileCache struct {
	cache *ristretto.Cache[string, models.Profile]
	ttl   time.Duration

	mu        sync.Mutex
	counter   uint64
	clearedAt uint64
	gens      map[int64]uint64
}

func NewProfileCache() (*ProfileCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, models.Profile]{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profile cache: %w", err)
	}
	return &ProfileCache{cache: cache, ttl: ProfileTTL, gens: make(map[int64]uint64)}, nil
}

func profileKey(userID int64) string {
	return fmt.Sprintf("profile:%d", userID)
}

func (c *ProfileCache) Get(userID int64) (models.Profile, bool) {
	return c.cache.Get(profileKey(userID))
}

// Generation identifies the last invalidation that affected userID.
func (c *ProfileCache) Generation(userID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(userID)
}

func (c *ProfileCache) generation(userID int64) uint64 {
	return max(c.gens[userID], c.clearedAt)
}

// Set caches p if no invalidation for p.UserID happened since generation was
// read. It reports whether the row was stored.
func (c *ProfileCache) Set(p models.Profile, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(p.UserID) != generation {
		return false
	}
	c.cache.SetWithTTL(profileKey(p.UserID), p, 1, c.ttl)
	c.cache.Wait()
	return true
}

func (c *ProfileCache) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	c.gens[userID] = c.counter
	c.cache.Del(profileKey(userID))
}

func (c *ProfileCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	c.clearedAt = c.counter
	clear(c.gens)
	c.cache.Clear()
}

func (c *ProfileCache) Close() {
	c.cache.Close()
}
