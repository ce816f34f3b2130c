package cachefs

import "sync"

// keyedLocks hands out one RW lock per cache identifier and forgets it once
// nobody holds it
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.RWMutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyLock)}
}

func (k *keyedLocks) acquire(id string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{}
		k.locks[id] = l
	}
	l.refs++
	return l
}

func (k *keyedLocks) release(id string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

// Lock takes the writer lock for id and returns its release func
func (k *keyedLocks) Lock(id string) func() {
	l := k.acquire(id)
	l.Lock()
	return func() {
		l.Unlock()
		k.release(id, l)
	}
}

// RLock takes a reader lock for id and returns its release func
func (k *keyedLocks) RLock(id string) func() {
	l := k.acquire(id)
	l.RLock()
	return func() {
		l.RUnlock()
		k.release(id, l)
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
