package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Deduper admits one event per key per time bucket
type Deduper struct {
	mu     sync.Mutex
	seen   *expirable.LRU[string, struct{}]
	bucket time.Duration
}

// NewDeduper creates a deduper remembering up to size keys per bucket
func NewDeduper(size int, bucket time.Duration) *Deduper {
	if size <= 0 {
		size = 10000
	}
	if bucket <= 0 {
		bucket = time.Minute
	}
	return &Deduper{
		// Entries must outlive their bucket, so keep them two buckets.
		seen:   expirable.NewLRU[string, struct{}](size, nil, 2*bucket),
		bucket: bucket,
	}
}

// First reports whether key has not been seen yet in now's bucket, and marks it
func (d *Deduper) First(key string, now time.Time) bool {
	k := fmt.Sprintf("%s|%d", key, now.UnixNano()/int64(d.bucket))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen.Contains(k) {
		return false
	}
	d.seen.Add(k, struct{}{})
	return true
}
