package quota

import (
	"context"
	"sync"
)

// Locker grants exclusive access to one key at a time.
type Locker interface {
	// Lock blocks until key is free or ctx is done.
	Lock(ctx context.Context, key string) (release func(), err error)
	// TryLock returns ok=false without waiting when key is held.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// keyedMutex is the in-process Locker. Entries are dropped once nobody holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done. The returned release func is idempotent.
func (m *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	l := m.ref(key)

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, l)
		return nil, ctx.Err()
	}
	return m.releaser(key, l), nil
}

func (m *keyedMutex) TryLock(_ context.Context, key string) (func(), bool, error) {
	l := m.ref(key)

	select {
	case l.ch <- struct{}{}:
		return m.releaser(key, l), true, nil
	default:
		m.unref(key, l)
		return nil, false, nil
	}
}

func (m *keyedMutex) ref(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *keyedMutex) releaser(key string, l *keyLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.unref(key, l)
		})
	}
}

func (m *keyedMutex) unref(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *keyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
