package queuesvc

import "sync"

// contextLocks serializes queue mutations per user and scope. The lock
// map only grows, which is acceptable for the bounded set of active
// filter contexts.
type contextLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newContextLocks() *contextLocks {
	return &contextLocks{locks: make(map[string]*sync.Mutex)}
}

func (c *contextLocks) lock(userID, scope string) func() {
	key := userID + "\x00" + scope
	c.mu.Lock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
