package cache

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a cache entry. Transitions form the DAG
// PENDING -> GENERATING -> {COMPLETED, FAILED}; there are no backward
// transitions and no COMPLETED <-> FAILED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusGenerating Status = "GENERATING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// entry is one fingerprint's synthesis record. audio is set iff status is
// COMPLETED; err is set iff status is FAILED. done is closed exactly once,
// when the entry reaches either terminal status, and is safe for any
// number of concurrent receivers.
type entry struct {
	text  string
	model string

	audio []byte
	err   string

	status      Status
	createdAt   time.Time
	completedAt time.Time

	done     chan struct{}
	closeOne sync.Once
}

func newEntry(text, model string) *entry {
	return &entry{
		text:      text,
		model:     model,
		status:    StatusPending,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// signal closes done. Safe to call more than once; only the first call has
// any effect, matching the completion signal's set-exactly-once contract.
func (e *entry) signal() {
	e.closeOne.Do(func() {
		close(e.done)
	})
}
