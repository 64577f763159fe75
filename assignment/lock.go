package assignment

import "sync"

// userLocks serializes fixed-block submissions per user id.
type userLocks struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{mutexes: make(map[string]*sync.Mutex)}
}

// Lock blocks until the user's mutex is held and returns its release.
func (l *userLocks) Lock(userID string) (unlock func()) {
	mu := l.get(userID)
	mu.Lock()
	return mu.Unlock
}

func (l *userLocks) get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mu, ok := l.mutexes[userID]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	l.mutexes[userID] = mu
	return mu
}
