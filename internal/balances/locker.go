package balances

import (
	"context"
	"sync"
)

// Locker grants exclusive ownership of a named key until the returned
// release func is called. Acquire must honour ctx while waiting.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// KeyedMutex is an in-process Locker with one slot per name. Slots are
// dropped when nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex builds an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Acquire blocks until name is free or ctx is done.
func (m *KeyedMutex) Acquire(ctx context.Context, name string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	s, ok := m.slots[name]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[name] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(name, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.unref(name, s)
		})
	}, nil
}

func (m *KeyedMutex) unref(name string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, name)
	}
}

// Chain acquires every locker in order and releases them in reverse. It is
// used to take the in-process lock before the cross-instance one.
type Chain []Locker

// Acquire implements Locker.
func (c Chain) Acquire(ctx context.Context, name string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, locker := range c {
		if locker == nil {
			continue
		}
		release, err := locker.Acquire(ctx, name)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
