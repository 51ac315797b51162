package xcontest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/lkadlec/cashier/pkg/logger"
)

// pilotIDPattern extracts the numeric pilot id from a profile page: the
// page links the pilot's flight list filtered by that id.
var pilotIDPattern = regexp.MustCompile(`filter\[pilot\]=(\d+)`)

// IDCache is a process-wide username-to-id cache, shared by reference.
// Usernames never change their numeric id on the site, so entries are
// never invalidated; maxEntries only bounds memory (0 means unbounded).
type IDCache struct {
	mu         sync.Mutex
	ids        map[string]int64
	maxEntries int
}

// NewIDCache creates a pilot id cache holding at most maxEntries entries
func NewIDCache(maxEntries int) *IDCache {
	return &IDCache{
		ids:        make(map[string]int64),
		maxEntries: maxEntries,
	}
}

// Get returns the cached id for a username
func (c *IDCache) Get(username string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[username]
	return id, ok
}

// Put stores the id for a username. When the cache is full an arbitrary
// entry is evicted; ids are stable, so churn only costs a refetch.
func (c *IDCache) Put(username string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxEntries > 0 && len(c.ids) >= c.maxEntries {
		for evicted := range c.ids {
			delete(c.ids, evicted)
			break
		}
	}
	c.ids[username] = id
}

// Len returns the number of cached entries
func (c *IDCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// Resolver resolves pilot usernames to the site's numeric pilot ids
type Resolver struct {
	client *Client
	cache  *IDCache
	logger *logger.Logger
}

// NewResolver creates a pilot identity resolver backed by the given cache
func NewResolver(client *Client, cache *IDCache, logger *logger.Logger) *Resolver {
	return &Resolver{
		client: client,
		cache:  cache,
		logger: logger.Named("pilot-identity"),
	}
}

// ResolveID returns the numeric site id for the pilot, fetching and
// caching it on first use. A profile page without the id pattern yields
// ErrIdentityNotFound.
func (r *Resolver) ResolveID(ctx context.Context, pilot *Pilot) (int64, error) {
	if pilot.SiteID != 0 {
		return pilot.SiteID, nil
	}
	if id, ok := r.cache.Get(pilot.Username); ok {
		pilot.SiteID = id
		return id, nil
	}

	profileURL := fmt.Sprintf("%s/world/en/pilots/detail:%s", r.client.BaseURL(), pilot.Username)
	body, err := r.client.FetchPage(ctx, profileURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pilot profile: %w", err)
	}

	match := pilotIDPattern.FindSubmatch(body)
	if match == nil {
		return 0, fmt.Errorf("pilot %s: %w", pilot.Username, ErrIdentityNotFound)
	}
	id, err := strconv.ParseInt(string(match[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pilot %s has an invalid id: %w", pilot.Username, err)
	}

	r.cache.Put(pilot.Username, id)
	pilot.SiteID = id

	r.logger.Debug("Resolved pilot id",
		logger.String("username", pilot.Username),
		logger.Int64("id", id),
	)
	return id, nil
}
