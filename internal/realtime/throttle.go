package realtime

import (
	"sync"
	"time"
)

// Throttle admits at most one event per key per window. Dashboard counter
// pushes are coalesced with it so a burst of order edits becomes one update.
type Throttle struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	window   time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

func NewThrottle(window time.Duration) *Throttle {
	t := &Throttle{
		lastSent: make(map[string]time.Time),
		window:   window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go t.cleanup()
	return t
}

func (t *Throttle) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			for key, sent := range t.lastSent {
				if t.now().Sub(sent) > t.window {
					delete(t.lastSent, key)
				}
			}
			t.mu.Unlock()
		case <-t.stopCh:
			return
		}
	}
}

func (t *Throttle) Stop() {
	close(t.stopCh)
}

func (t *Throttle) Allow(key string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if sent, ok := t.lastSent[key]; ok && now.Sub(sent) < t.window {
		return false
	}
	t.lastSent[key] = now
	return true
}
