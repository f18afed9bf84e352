// Package sources holds the observable account, network, preference and
// keyring stores that drive token detection.
package sources

import "sync"

// Listeners is an ordered set of subscriber callbacks. The zero value is ready to use.
// Callbacks run outside the lock, in subscription order.
type Listeners[T any] struct {
	mu     sync.Mutex
	nextID int
	ids    []int
	fns    map[int]func(T)
}

// Add registers fn and returns an idempotent unsubscribe func.
func (l *Listeners[T]) Add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.nextID
	l.nextID++
	l.ids = append(l.ids, id)
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *Listeners[T]) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.fns, id)
	for i, v := range l.ids {
		if v == id {
			l.ids = append(l.ids[:i], l.ids[i+1:]...)
			break
		}
	}
}

// Emit calls every registered callback with v.
func (l *Listeners[T]) Emit(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.ids))
	for _, id := range l.ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
