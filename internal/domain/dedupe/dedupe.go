// Package dedupe remembers the responses of idempotent requests so that a
// retried request replays the first answer instead of running again.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the result of reserving a key.
type State int

const (
	// Fresh means the key was unknown and is now reserved by the caller,
	// who must Complete or Release it.
	Fresh State = iota
	// Pending means another request holding the key has not completed yet.
	Pending
	// Done means the key completed and its response is returned for replay.
	Done
)

// Response is a remembered reply.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Cache records responses by idempotency key.
type Cache interface {
	// Reserve atomically looks key up and reserves it when unknown.
	Reserve(ctx context.Context, key string) (Response, State)

	// Complete stores the response for a reserved key.
	Complete(ctx context.Context, key string, resp Response)

	// Release drops a reservation so that the key may be retried.
	Release(ctx context.Context, key string)

	Size() int64
}

// entry is a cache slot; slots form a list ordered most recently used first.
type entry struct {
	key        string
	resp       Response
	done       bool
	prev, next *entry
}

func (e *entry) reset() {
	*e = entry{}
}

// memoryCache keeps up to maxSize keys, evicting the least recently used
// first. Reserving and replaying a key both count as use.
// maxSize <= 0 disables eviction.
type memoryCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	head, tail *entry
	maxSize    int
	size       atomic.Int64
	pool       sync.Pool
}

// NewMemoryCache creates an in-memory cache with configuration options.
func NewMemoryCache(opts ...Option) Cache {
	c := &memoryCache{
		maxSize: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = make(map[string]*entry)
	c.pool = sync.Pool{
		New: func() any { return &entry{} },
	}
	return c
}

func (c *memoryCache) Reserve(_ context.Context, key string) (Response, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.moveToFront(e)
		if !e.done {
			return Response{}, Pending
		}
		return e.resp, Done
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	e := c.pool.Get().(*entry)
	e.key = key
	c.pushFront(e)
	c.entries[key] = e
	c.size.Add(1)
	return Response{}, Fresh
}

func (c *memoryCache) Complete(_ context.Context, key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// An evicted reservation is not recreated.
	if e, ok := c.entries[key]; ok {
		e.resp = resp
		e.done = true
	}
}

func (c *memoryCache) Release(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.done {
		return
	}
	c.remove(e)
}

// The list helpers below require c.mu.

func (c *memoryCache) pushFront(e *entry) {
	e.prev, e.next = nil, c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *memoryCache) detach(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *memoryCache) moveToFront(e *entry) {
	if c.head == e {
		return
	}
	c.detach(e)
	c.pushFront(e)
}

// remove drops e from the list and the map and recycles it.
func (c *memoryCache) remove(e *entry) {
	c.detach(e)
	delete(c.entries, e.key)
	e.reset()
	c.pool.Put(e)
	c.size.Add(-1)
}

func (c *memoryCache) evictOldest() {
	if c.tail != nil {
		c.remove(c.tail)
	}
}

func (c *memoryCache) Size() int64 {
	return c.size.Load()
}
