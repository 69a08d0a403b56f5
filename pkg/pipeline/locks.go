package pipeline

import "sync"

// AccountLocks keeps two runs from working on the same account at once,
// e.g. a new tick while a stopped one is still draining.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[int]*sync.Mutex)}
}

// TryLock reports false when the account is already in use.
func (l *AccountLocks) TryLock(accountID int) bool {
	l.mu.Lock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	l.mu.Unlock()
	return lock.TryLock()
}

func (l *AccountLocks) Unlock(accountID int) {
	l.mu.Lock()
	lock := l.locks[accountID]
	l.mu.Unlock()
	if lock != nil {
		lock.Unlock()
	}
}
