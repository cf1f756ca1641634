package cachestore

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type memItem struct {
	key       string
	val       []byte
	expiresAt int64
	size      int64
	prev      *memItem
	next      *memItem
}

// Memory is an in-process LRU bounded by the summed size of keys and values.
// Expired entries are dropped on read and by an optional sweep loop.
type Memory struct {
	maxBytes int64
	log      *logrus.Entry
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*memItem
	head  *memItem
	tail  *memItem
	total int64

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Store = (*Memory)(nil)

// NewMemory creates the store. maxBytes <= 0 disables the size bound;
// sweepEvery <= 0 disables the background sweep.
func NewMemory(maxBytes int64, sweepEvery time.Duration, log *logrus.Entry) *Memory {
	m := &Memory{
		maxBytes: maxBytes,
		log:      log,
		now:      time.Now,
		items:    map[string]*memItem{},
		stopCh:   make(chan struct{}),
	}
	if sweepEvery > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.sweepLoop(sweepEvery)
		}()
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if expired(it.expiresAt, m.now()) {
		m.dropLocked(it)
		return nil, false, nil
	}
	m.moveToFront(it)
	out := make([]byte, len(it.val))
	copy(out, it.val)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	sz := int64(len(key) + len(val))
	if m.maxBytes > 0 && sz > m.maxBytes {
		return ErrValueTooLarge
	}
	buf := make([]byte, len(val))
	copy(buf, val)
	exp := deadline(m.now(), ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	if it, ok := m.items[key]; ok {
		m.total -= it.size
		it.val = buf
		it.size = sz
		it.expiresAt = exp
		m.total += sz
		m.moveToFront(it)
		m.evictLocked()
		return nil
	}

	it := &memItem{key: key, val: buf, expiresAt: exp, size: sz}
	m.items[key] = it
	m.addToFront(it)
	m.total += sz
	m.evictLocked()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
	return nil
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) TotalSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *Memory) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			if n := m.sweep(); n > 0 && m.log != nil {
				m.log.Debugf("memory sweep removed %d expired entries", n)
			}
		}
	}
}

func (m *Memory) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for _, it := range m.items {
		if expired(it.expiresAt, now) {
			m.dropLocked(it)
			n++
		}
	}
	return n
}

// evictLocked drops least-recently-used entries until the budget holds.
func (m *Memory) evictLocked() {
	evicted := 0
	for m.maxBytes > 0 && m.total > m.maxBytes && m.tail != nil {
		m.dropLocked(m.tail)
		evicted++
	}
	if evicted > 0 && m.log != nil {
		m.log.Debugf("memory cache over budget, evicted %d entries", evicted)
	}
}

func (m *Memory) dropLocked(it *memItem) {
	m.remove(it)
	delete(m.items, it.key)
	m.total -= it.size
}

func (m *Memory) addToFront(it *memItem) {
	it.prev = nil
	it.next = m.head
	if m.head != nil {
		m.head.prev = it
	}
	m.head = it
	if m.tail == nil {
		m.tail = it
	}
}

func (m *Memory) remove(it *memItem) {
	if it.prev != nil {
		it.prev.next = it.next
	} else {
		m.head = it.next
	}
	if it.next != nil {
		it.next.prev = it.prev
	} else {
		m.tail = it.prev
	}
	it.prev, it.next = nil, nil
}

func (m *Memory) moveToFront(it *memItem) {
	if m.head == it {
		return
	}
	m.remove(it)
	m.addToFront(it)
}
