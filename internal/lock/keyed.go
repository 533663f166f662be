package lock

import "sync"

// Keyed hands out one read/write mutex per key. Entries are dropped once nobody holds or waits on them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	rw   sync.RWMutex
	refs int
}

// NewKeyed creates an empty lock table
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Lock takes key exclusively and returns the matching unlock.
func (k *Keyed) Lock(key string) func() {
	e := k.acquire(key)
	e.rw.Lock()
	return func() {
		e.rw.Unlock()
		k.release(key, e)
	}
}

// RLock takes key shared and returns the matching unlock.
func (k *Keyed) RLock(key string) func() {
	e := k.acquire(key)
	e.rw.RLock()
	return func() {
		e.rw.RUnlock()
		k.release(key, e)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func DoctorKey(id string) string   { return "doctor:" + id }
func TemplateKey(id string) string { return "template:" + id }
func RecordKey(id string) string   { return "record:" + id }
