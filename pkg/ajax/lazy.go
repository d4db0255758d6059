package ajax

import "sync"

// lazy is a memoized value, it is computed at most once.
type lazy[T any] struct {
	lock  sync.Mutex
	done  bool
	value T
	err   error
}

func (l *lazy[T]) get(fn func() (T, error)) (T, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if !l.done {
		l.value, l.err = fn()
		l.done = true
	}
	return l.value, l.err
}

func (l *lazy[T]) set(value T, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.value, l.err, l.done = value, err, true
}
