package badger

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/onstrata/strata-go/model/strata"
	"github.com/onstrata/strata-go/module"
	"github.com/onstrata/strata-go/module/metrics"
	"github.com/onstrata/strata-go/storage"
)

func withLimit(limit uint) func(*Cache) {
	return func(c *Cache) {
		c.limit = limit
	}
}

type storeFunc func(strata.Identifier, interface{}) error

func withStore(store storeFunc) func(*Cache) {
	return func(c *Cache) {
		c.store = store
	}
}

func noStore(strata.Identifier, interface{}) error {
	return fmt.Errorf("no store function for cache put available")
}

type retrieveFunc func(strata.Identifier) (interface{}, error)

func withRetrieve(retrieve retrieveFunc) func(*Cache) {
	return func(c *Cache) {
		c.retrieve = retrieve
	}
}

func noRetrieve(strata.Identifier) (interface{}, error) {
	return nil, fmt.Errorf("no retrieve function for cache get available")
}

func withResource(resource string) func(*Cache) {
	return func(c *Cache) {
		c.resource = resource
	}
}

type Cache struct {
	metrics  module.CacheMetrics
	limit    uint
	store    storeFunc
	retrieve retrieveFunc
	resource string
	cache    *lru.Cache
}

func newCache(collector module.CacheMetrics, options ...func(*Cache)) *Cache {
	c := Cache{
		metrics:  collector,
		limit:    1000,
		store:    noStore,
		retrieve: noRetrieve,
		resource: metrics.ResourceUndefined,
	}
	for _, option := range options {
		option(&c)
	}
	c.cache, _ = lru.New(int(c.limit))
	c.metrics.CacheEntries(c.resource, uint(c.cache.Len()))
	return &c
}

// Get will try to retrieve the resource from cache first, and then from the
// injected retrieve function.
func (c *Cache) Get(entityID strata.Identifier) (interface{}, error) {

	// check if we have it in the cache
	resource, cached := c.cache.Get(entityID)
	if cached {
		c.metrics.CacheHit(c.resource)
		return resource, nil
	}

	// get it from the database
	resource, err := c.retrieve(entityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.metrics.CacheNotFound(c.resource)
		}
		return nil, fmt.Errorf("could not retrieve resource: %w", err)
	}
	c.metrics.CacheMiss(c.resource)

	// cache the resource and eject least recently used one if we reached limit
	evicted := c.cache.Add(entityID, resource)
	if !evicted {
		c.metrics.CacheEntries(c.resource, uint(c.cache.Len()))
	}

	return resource, nil
}

// Put will add a resource to the cache with the given ID.
func (c *Cache) Put(entityID strata.Identifier, resource interface{}) error {

	// try to store the resource
	err := c.store(entityID, resource)
	if err != nil {
		return fmt.Errorf("could not store resource: %w", err)
	}

	// cache the resource and eject least recently used one if we reached limit
	evicted := c.cache.Add(entityID, resource)
	if !evicted {
		c.metrics.CacheEntries(c.resource, uint(c.cache.Len()))
	}

	return nil
}

// Insert adds a resource to the cache without storing it in the database,
// e.g. after the resource was written as part of a batch.
func (c *Cache) Insert(entityID strata.Identifier, resource interface{}) {
	evicted := c.cache.Add(entityID, resource)
	if !evicted {
		c.metrics.CacheEntries(c.resource, uint(c.cache.Len()))
	}
}

// Remove drops the resource with the given ID from the cache, if it is
// present.
func (c *Cache) Remove(entityID strata.Identifier) {
	c.cache.Remove(entityID)
}
