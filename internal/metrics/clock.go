package metrics

import (
	"sync"
	"time"
)

// laneClock tracks lane start times between RecordLaneStart and
// RecordLaneEnd. Lanes run concurrently, so access is locked.
type laneClock struct {
	mu     sync.Mutex
	starts map[string]time.Time
}

func (c *laneClock) start(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.starts == nil {
		c.starts = make(map[string]time.Time)
	}
	c.starts[id] = time.Now()
}

func (c *laneClock) stop(id string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	started, ok := c.starts[id]
	if !ok {
		return 0, false
	}
	delete(c.starts, id)
	return time.Since(started), true
}
