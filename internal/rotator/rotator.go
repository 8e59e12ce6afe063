// Package rotator hands out upstream TTS credentials round-robin and
// circuit-breaks any credential that fails too many times in a row.
package rotator

import (
	"fmt"
	"sync"
	"time"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/metrics"
)

const (
	// MaxConsecutiveFailures is the number of consecutive failures a
	// credential tolerates before it is marked unhealthy.
	MaxConsecutiveFailures = 5

	// RecoveryInterval is how long an unhealthy credential waits before
	// it is eligible to be tried again.
	RecoveryInterval = 300 * time.Second
)

// Stats is a point-in-time snapshot of one credential's health.
type Stats struct {
	Token               string
	Masked              string
	Healthy             bool
	ConsecutiveFailures int
	TotalRequests       int64
	TotalSuccesses      int64
	TotalFailures       int64
	LastUsed            time.Time
	LastFailure         time.Time
}

type credential struct {
	token               string
	healthy             bool
	consecutiveFailures int
	totalRequests       int64
	totalSuccesses      int64
	totalFailures       int64
	lastUsed            time.Time
	lastFailure         time.Time
}

func mask(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// Rotator round-robins over a fixed pool of credentials, skipping any that
// are currently circuit-broken. All state is protected by a single mutex;
// the rotator never performs network I/O itself.
type Rotator struct {
	mu    sync.Mutex
	creds []*credential
	next  int
}

// New builds a rotator over the given tokens. It does no validation beyond
// requiring at least one token: empty or duplicate tokens are kept as
// separate pool entries.
func New(tokens []string) (*Rotator, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("rotator: at least one credential is required")
	}
	creds := make([]*credential, len(tokens))
	for i, t := range tokens {
		creds[i] = &credential{token: t, healthy: true}
	}
	return &Rotator{creds: creds}, nil
}

// Next returns the next credential to use, advancing the round-robin
// cursor. It skips unhealthy credentials whose recovery interval hasn't
// elapsed. If every credential is unhealthy, it forces recovery of all of
// them and resets the cursor to index 0, then returns that credential —
// the pool must never wedge permanently shut. Selecting a credential here
// is what counts as "used": total-requests and last-used are recorded at
// this point, not when the caller later reports back success or failure.
func (r *Rotator) Next() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.creds) == 0 {
		return "", fmt.Errorf("rotator: no credentials configured")
	}

	for attempt := 0; attempt < len(r.creds); attempt++ {
		idx := r.next % len(r.creds)
		r.next = (r.next + 1) % len(r.creds)
		c := r.creds[idx]
		if r.isUsable(c) {
			c.totalRequests++
			c.lastUsed = time.Now()
			return c.token, nil
		}
	}

	// Every credential is circuit-broken. Force the whole pool back to
	// healthy rather than return an error, and restart from index 0 —
	// not from wherever the cursor happened to land.
	for _, c := range r.creds {
		c.healthy = true
		c.consecutiveFailures = 0
	}
	r.next = 1 % len(r.creds)
	metrics.RotatorForcedRecoveries.Inc()
	chosen := r.creds[0]
	chosen.totalRequests++
	chosen.lastUsed = time.Now()
	return chosen.token, nil
}

// isUsable reports whether c can be handed out, lazily recovering it if its
// recovery interval has elapsed.
func (r *Rotator) isUsable(c *credential) bool {
	if c.healthy {
		return true
	}
	if time.Since(c.lastFailure) >= RecoveryInterval {
		c.healthy = true
		c.consecutiveFailures = 0
		return true
	}
	return false
}

// ReportSuccess records a successful use of token and resets its
// consecutive-failure count. It does not touch total-requests — that is
// counted once per selection, in Next.
func (r *Rotator) ReportSuccess(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.find(token)
	if c == nil {
		return
	}
	c.totalSuccesses++
	c.consecutiveFailures = 0
	c.healthy = true
}

// ReportFailure records a failed use of token, tripping the circuit once
// MaxConsecutiveFailures is reached. It does not touch total-requests —
// that is counted once per selection, in Next.
func (r *Rotator) ReportFailure(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.find(token)
	if c == nil {
		return
	}
	c.totalFailures++
	c.consecutiveFailures++
	c.lastFailure = time.Now()
	if c.consecutiveFailures >= MaxConsecutiveFailures {
		c.healthy = false
	}
}

func (r *Rotator) find(token string) *credential {
	for _, c := range r.creds {
		if c.token == token {
			return c
		}
	}
	return nil
}

// Stats returns a snapshot of every credential's health, in pool order.
func (r *Rotator) Stats() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stats, len(r.creds))
	for i, c := range r.creds {
		out[i] = Stats{
			Token:               c.token,
			Masked:              mask(c.token),
			Healthy:             c.healthy,
			ConsecutiveFailures: c.consecutiveFailures,
			TotalRequests:       c.totalRequests,
			TotalSuccesses:      c.totalSuccesses,
			TotalFailures:       c.totalFailures,
			LastUsed:            c.lastUsed,
			LastFailure:         c.lastFailure,
		}
	}
	return out
}

// HealthyCount returns how many credentials are currently usable without
// forcing a recovery.
func (r *Rotator) HealthyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.creds {
		if r.isUsable(c) {
			n++
		}
	}
	metrics.RotatorHealthyCredentials.Set(float64(n))
	return n
}
