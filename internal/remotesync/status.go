package remotesync

import (
	"sync"
	"time"
)

// Status is the advisory side channel for remote failures. Mutations never
// see these errors; callers read them here.
type Status struct {
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
	Message     string    `json:"message,omitempty"`
	Running     bool      `json:"running"`
}

type statusBox struct {
	mu sync.RWMutex
	s  Status
}

func (b *statusBox) get() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.s
}

func (b *statusBox) begin(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.s.LastAttempt = now
	b.s.Running = true
}

func (b *statusBox) finish(now time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.s.Running = false
	if err != nil {
		b.s.LastError = err.Error()
		b.s.Message = "Sync failed; changes are saved on this device and will be sent later."
		return
	}
	b.s.LastSuccess = now
	b.s.LastError = ""
	b.s.Message = ""
}

func (b *statusBox) pushFailed(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.s.LastError = err.Error()
	b.s.Message = "Could not send the latest change; it will be retried on the next sync."
}
