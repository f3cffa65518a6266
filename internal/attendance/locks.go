package attendance

import "sync"

// userLocks serializes attendance mutations per user. Entries are reference
// counted and removed once the last holder releases, so the map does not
// grow with the user population.
type userLocks struct {
	mu    sync.Mutex
	locks map[int]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{
		locks: make(map[int]*userLock),
	}
}

func (ul *userLocks) lock(userId int) {
	ul.mu.Lock()
	l, ok := ul.locks[userId]
	if !ok {
		l = &userLock{}
		ul.locks[userId] = l
	}
	l.refs++
	ul.mu.Unlock()

	l.mu.Lock()
}

func (ul *userLocks) unlock(userId int) {
	ul.mu.Lock()
	l := ul.locks[userId]
	l.refs--
	if l.refs == 0 {
		delete(ul.locks, userId)
	}
	ul.mu.Unlock()

	l.mu.Unlock()
}
