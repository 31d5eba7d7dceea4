package lock

import (
	"context"
	"sync"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

// Noop never blocks. Concurrent requests for one session race and the last write wins.
type Noop struct{}

func (Noop) Lock(context.Context, domain.SessionID) (func(), error) {
	return func() {}, nil
}

// LocalLocker serializes requests per session inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[domain.SessionID]*sessionLock
}

type sessionLock struct {
	ch   chan struct{} // holds one token while the session is locked
	refs int
}

var (
	_ domain.SessionLocker = Noop{}
	_ domain.SessionLocker = (*LocalLocker)(nil)
)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[domain.SessionID]*sessionLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, id domain.SessionID) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{ch: make(chan struct{}, 1)}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, sl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-sl.ch
			l.release(id, sl)
		})
	}, nil
}

func (l *LocalLocker) release(id domain.SessionID, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}

// size reports how many sessions currently have waiters or holders.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
