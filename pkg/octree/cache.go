package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pointgrid/pointgrid/pkg/point"
)

// DefaultCachedNodes is the capacity of a tree's batch cache.
const DefaultCachedNodes = 25

type cacheKey struct {
	nodeID    string
	batchSize int
}

// NodeCache memoizes the batches of recently read nodes, keyed by node id and
// batch size. A hit is only served when the cached batches carry every
// requested attribute. The single mutex guards short map operations only.
type NodeCache struct {
	mu  sync.Mutex
	lru *lru.Cache[cacheKey, []*point.PointsBatch]
}

// NewNodeCache returns a cache bounded to capacity node entries.
func NewNodeCache(capacity int) *NodeCache {
	c, err := lru.New[cacheKey, []*point.PointsBatch](capacity)
	if err != nil {
		// Only reachable with a non-positive capacity.
		panic(err)
	}
	return &NodeCache{lru: c}
}

// cachedBatches returns the node's batches if present with all attributes.
func (c *NodeCache) cachedBatches(key cacheKey, attributes []string) ([]*point.PointsBatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	batches, ok := c.lru.Get(key)
	if !ok || len(batches) == 0 {
		return nil, false
	}
	for _, attribute := range attributes {
		if _, ok := batches[0].Attributes[attribute]; !ok {
			return nil, false
		}
	}
	return batches, true
}

func (c *NodeCache) storeBatches(key cacheKey, batches []*point.PointsBatch) {
	if len(batches) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, batches)
}

// cachedNodeIterator serves batches from the cache when possible, otherwise
// reads from disk and populates the cache after full consumption. Batches are
// handed out as deep copies because downstream filtering mutates them.
type cachedNodeIterator struct {
	cache *NodeCache
	key   cacheKey

	cached []*point.PointsBatch
	next   int

	disk       *NodeIterator
	accumulate []*point.PointsBatch
}

func newCachedNodeIterator(t *Tree, id NodeId, numPoints int64, attributes []string, batchSize int) (batchIterator, error) {
	if batchSize <= 0 {
		batchSize = NumPointsPerBatch
	}
	key := cacheKey{nodeID: id.String(), batchSize: batchSize}
	if t.cache != nil {
		if batches, ok := t.cache.cachedBatches(key, attributes); ok {
			return &cachedNodeIterator{cache: t.cache, key: key, cached: batches}, nil
		}
	}
	disk, err := NewNodeIterator(t.provider, t.meta, id, numPoints, attributes, batchSize)
	if err != nil {
		return nil, err
	}
	return &cachedNodeIterator{cache: t.cache, key: key, disk: disk}, nil
}

func (it *cachedNodeIterator) NextBatch() (*point.PointsBatch, error) {
	if it.disk == nil {
		if it.next >= len(it.cached) {
			return nil, io.EOF
		}
		batch := it.cached[it.next].Clone()
		it.next++
		return batch, nil
	}
	batch, err := it.disk.NextBatch()
	if err == io.EOF {
		if it.cache != nil {
			it.cache.storeBatches(it.key, it.accumulate)
			it.accumulate = nil
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if it.cache != nil {
		it.accumulate = append(it.accumulate, batch)
		return batch.Clone(), nil
	}
	return batch, nil
}

func (it *cachedNodeIterator) Close() error {
	if it.disk != nil {
		return it.disk.Close()
	}
	return nil
}
