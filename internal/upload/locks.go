package upload

import "sync"

// lockRegistry hands out per-session locks keyed by upload id, so
// sessions never contend with each other. Entries are reference
// counted and dropped once nobody holds them.
type lockRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionLock
}

// sessionLock serializes work on one session: chunk uploads hold the
// session lock shared plus their own chunk-number lock, while init and
// completion hold the session lock exclusively.
type sessionLock struct {
	session sync.RWMutex

	mu     sync.Mutex
	chunks map[int]*sync.Mutex
	refs   int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{sessions: make(map[string]*sessionLock)}
}

func (r *lockRegistry) acquire(id string) *sessionLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.sessions[id]
	if !ok {
		l = &sessionLock{chunks: make(map[int]*sync.Mutex)}
		r.sessions[id] = l
	}
	l.refs++
	return l
}

func (r *lockRegistry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.sessions[id]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(r.sessions, id)
	}
}

func (l *sessionLock) chunkLock(number int) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.chunks[number]
	if !ok {
		m = &sync.Mutex{}
		l.chunks[number] = m
	}
	return m
}
