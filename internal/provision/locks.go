package provision

import "sync"

// peerLocks сериализует операции над одним пиром. Запись удаляется, когда
// её никто не держит и не ждёт.
type peerLocks struct {
	mu sync.Mutex
	m  map[string]*peerLock
}

type peerLock struct {
	sync.Mutex
	refs int
}

func (l *peerLocks) lock(id string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*peerLock)
	}
	pl, ok := l.m[id]
	if !ok {
		pl = &peerLock{}
		l.m[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.Lock()
	return func() {
		pl.Unlock()
		l.mu.Lock()
		if pl.refs--; pl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

func (l *peerLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
