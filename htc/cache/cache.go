// Package cache holds the snapshot of job records taken by the latest full
// status query. A snapshot is only ever replaced wholesale; there is no merge.
package cache

import (
	"strings"

	"github.com/twitter/groupcache/lru"

	"github.com/twitter/htcproxy/htc"
)

// Number of NOT_FOUND ids remembered; the least recently seen are forgotten first.
const DefaultMaxTombstones = 100000

// Cache maps JobIDs to the record observed in the most recent status dump and
// remembers the ids that have been observed as gone.
//
// Cache is owned by a single proxy and is not safe for concurrent use.
type Cache struct {
	records  map[htc.JobID]htc.JobRecord
	notFound *lru.Cache
}

func NewCache() *Cache {
	return NewCacheWithTombstones(DefaultMaxTombstones)
}

// NewCacheWithTombstones remembers at most maxTombstones NOT_FOUND ids, 0 for no limit.
func NewCacheWithTombstones(maxTombstones int) *Cache {
	return &Cache{
		records:  make(map[htc.JobID]htc.JobRecord),
		notFound: lru.New(maxTombstones),
	}
}

// Replace swaps the snapshot for records, the result of a query covering every
// job whose name starts with prefix.
//
// Ids in the previous snapshot that the query covered but did not return have
// vanished from the scheduler; they are marked NOT_FOUND and returned. Ids
// outside prefix are dropped without a tombstone. Records whose id was already
// marked NOT_FOUND are not inserted and are returned as resurrected, since
// schedulers are not expected to reuse job numbers.
func (c *Cache) Replace(records []htc.JobRecord, prefix string) (vanished, resurrected []htc.JobID) {
	next := make(map[htc.JobID]htc.JobRecord, len(records))
	for _, r := range records {
		id := r.Info.ID
		if _, gone := c.notFound.Get(id); gone {
			resurrected = append(resurrected, id)
			continue
		}
		next[id] = r
	}
	for id, prev := range c.records {
		if _, ok := next[id]; !ok && strings.HasPrefix(prev.Info.Name, prefix) {
			c.MarkNotFound(id)
			vanished = append(vanished, id)
		}
	}
	c.records = next
	return vanished, resurrected
}

// Get returns the record for id from the current snapshot.
func (c *Cache) Get(id htc.JobID) (htc.JobRecord, bool) {
	r, ok := c.records[id]
	return r, ok
}

// Remove drops id from the snapshot without remembering it, so a later
// refresh may bring it back.
func (c *Cache) Remove(id htc.JobID) {
	delete(c.records, id)
}

// MarkNotFound drops id from the snapshot and records it as gone.
func (c *Cache) MarkNotFound(id htc.JobID) {
	delete(c.records, id)
	c.notFound.Add(id, nil)
}

func (c *Cache) IsNotFound(id htc.JobID) bool {
	_, ok := c.notFound.Get(id)
	return ok
}

// Tombstones is the number of NOT_FOUND ids currently remembered.
func (c *Cache) Tombstones() int {
	return c.notFound.Len()
}

// Len is the number of records in the current snapshot.
func (c *Cache) Len() int {
	return len(c.records)
}

// CountByStatus tallies the current snapshot by status.
func (c *Cache) CountByStatus() map[htc.JobStatus]int {
	counts := make(map[htc.JobStatus]int)
	for _, r := range c.records {
		counts[r.Status]++
	}
	return counts
}
