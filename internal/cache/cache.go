// Package cache is the speculative-synthesis coordinator: it coalesces
// duplicate TTS requests, runs generation in the background, blocks
// readers until a result is terminal, and evicts by size and age.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/fingerprint"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/metrics"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/wav"
)

// Synthesizer is the subset of ttsclient.Client the cache depends on.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Stats is a point-in-time snapshot of the cache's contents and hit rate.
type Stats struct {
	Pending         int
	Generating      int
	Completed       int
	Failed          int
	SegmentMappings int
	HitCount        int64
	MissCount       int64
	ConcatHitCount  int64
	HitRate         float64
}

// Cache owns every entry and segment mapping for the life of the process.
// Two independent locks guard it: cacheMu for entries, segMu for segment
// mappings. Any operation needing both acquires cacheMu first. Network I/O
// is never performed while either lock is held.
type Cache struct {
	cacheMu sync.Mutex
	entries map[fingerprint.Fingerprint]*entry

	segMu    sync.Mutex
	segments map[fingerprint.Fingerprint]*segmentMapping

	maxSize         int
	ttl             time.Duration
	cleanupInterval time.Duration

	synth Synthesizer

	hitCount       int64
	missCount      int64
	concatHitCount int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a cache and starts its background cleanup loop. Call
// Close to stop the loop during orderly shutdown.
func New(maxSize int, ttl, cleanupInterval time.Duration, synth Synthesizer) *Cache {
	c := &Cache{
		entries:         make(map[fingerprint.Fingerprint]*entry),
		segments:        make(map[fingerprint.Fingerprint]*segmentMapping),
		maxSize:         maxSize,
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		synth:           synth,
		stopCh:          make(chan struct{}),
	}
	c.wg.Add(1)
	go c.cleanupLoop()
	return c
}

// Close cancels the background cleanup loop. Any in-flight generation
// tasks are left to finish or fail on their own; the cache is volatile and
// a dropped result is acceptable.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// Submit computes the fingerprint for (model, text). If an entry already
// exists — including a FAILED one — its fingerprint is returned unchanged
// with no re-enqueue; a FAILED fingerprint is a sticky dead end until it
// expires via TTL (see the proxy's design notes on this tradeoff).
// Otherwise it evicts if at capacity, inserts a PENDING entry, and starts
// an asynchronous generation task.
func (c *Cache) Submit(text, model string) fingerprint.Fingerprint {
	fp := fingerprint.New(model, text)

	c.cacheMu.Lock()
	if _, exists := c.entries[fp]; exists {
		c.cacheMu.Unlock()
		return fp
	}
	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[fp] = newEntry(text, model)
	c.cacheMu.Unlock()

	go c.generate(fp)
	return fp
}

// SubmitWithSegments submits each non-empty segment (preserving order) and,
// if any survived, installs a segment mapping for the full text keyed by
// its own fingerprint. A later call for the same full text overwrites the
// mapping unconditionally.
func (c *Cache) SubmitWithSegments(fullText string, segments []string, model string) fingerprint.Fingerprint {
	fullFP := fingerprint.New(model, fullText)

	segFPs := make([]fingerprint.Fingerprint, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		segFPs = append(segFPs, c.Submit(seg, model))
	}

	if len(segFPs) > 0 {
		c.segMu.Lock()
		c.segments[fullFP] = &segmentMapping{
			displayText: truncateDisplay(fullText),
			segments:    segFPs,
			createdAt:   time.Now(),
		}
		c.segMu.Unlock()
	}

	return fullFP
}

// Get resolves audio for (text, model). A segment mapping, if present, is
// tried first via concatenation; a miss there falls through to a direct
// lookup, optionally triggering synthesis.
func (c *Cache) Get(ctx context.Context, text, model string, timeout time.Duration, generateIfMissing bool) []byte {
	fp := fingerprint.New(model, text)

	c.segMu.Lock()
	mapping, hasMapping := c.segments[fp]
	c.segMu.Unlock()

	if hasMapping {
		if audio := c.getConcatenated(ctx, mapping.segments, timeout); audio != nil {
			atomic.AddInt64(&c.concatHitCount, 1)
			metrics.CacheConcatHits.Inc()
			return audio
		}
	}

	c.cacheMu.Lock()
	e, ok := c.entries[fp]
	c.cacheMu.Unlock()

	if !ok {
		atomic.AddInt64(&c.missCount, 1)
		metrics.CacheMisses.Inc()
		if !generateIfMissing {
			return nil
		}
		c.Submit(text, model)
		c.cacheMu.Lock()
		e, ok = c.entries[fp]
		c.cacheMu.Unlock()
		if !ok {
			return nil
		}
	} else {
		atomic.AddInt64(&c.hitCount, 1)
		metrics.CacheHits.Inc()
	}

	return c.awaitEntry(ctx, e, timeout)
}

// GetByKey resolves audio for an already-known fingerprint, without ever
// triggering synthesis.
func (c *Cache) GetByKey(ctx context.Context, fp fingerprint.Fingerprint, timeout time.Duration) []byte {
	c.cacheMu.Lock()
	e, ok := c.entries[fp]
	c.cacheMu.Unlock()
	if !ok {
		return nil
	}
	return c.awaitEntry(ctx, e, timeout)
}

// getConcatenated resolves every segment in order against a shared timeout
// budget, floored at one second per remaining segment, then concatenates
// the results. Any segment miss aborts the whole read.
func (c *Cache) getConcatenated(ctx context.Context, segFPs []fingerprint.Fingerprint, timeout time.Duration) []byte {
	deadline := time.Now().Add(timeout)
	clips := make([][]byte, 0, len(segFPs))

	for _, fp := range segFPs {
		remaining := time.Until(deadline)
		if remaining < time.Second {
			remaining = time.Second
		}
		audio := c.GetByKey(ctx, fp, remaining)
		if audio == nil {
			return nil
		}
		clips = append(clips, audio)
	}

	out, err := wav.Concatenate(clips)
	if err != nil {
		return nil
	}
	return out
}

// awaitEntry blocks on e's completion signal until it is terminal, ctx is
// cancelled, or timeout elapses, and returns its audio iff COMPLETED.
func (c *Cache) awaitEntry(ctx context.Context, e *entry, timeout time.Duration) []byte {
	c.cacheMu.Lock()
	status := e.status
	c.cacheMu.Unlock()

	switch status {
	case StatusCompleted:
		return e.audio
	case StatusFailed:
		return nil
	}

	select {
	case <-e.done:
	case <-time.After(timeout):
		return nil
	case <-ctx.Done():
		return nil
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if e.status == StatusCompleted {
		return e.audio
	}
	return nil
}

// generate runs one fingerprint's synthesis. It drops cacheMu before
// calling the (network-bound) synthesizer and reacquires it to commit the
// result, so no lock is ever held across I/O. An entry evicted mid-flight
// causes this task to exit silently.
func (c *Cache) generate(fp fingerprint.Fingerprint) {
	c.cacheMu.Lock()
	e, ok := c.entries[fp]
	if !ok || e.status != StatusPending {
		c.cacheMu.Unlock()
		return
	}
	e.status = StatusGenerating
	text := e.text
	c.cacheMu.Unlock()

	start := time.Now()
	audio, err := c.synth.Synthesize(context.Background(), text)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())

	c.cacheMu.Lock()
	current, stillPresent := c.entries[fp]
	if !stillPresent || current != e {
		c.cacheMu.Unlock()
		return
	}
	if err != nil {
		e.err = err.Error()
		e.status = StatusFailed
		slog.Warn("tts generation failed", "fingerprint", fp.Short(), "error", err)
	} else {
		e.audio = audio
		e.status = StatusCompleted
		e.completedAt = time.Now()
	}
	e.signal()
	c.cacheMu.Unlock()
}

// evictOldestLocked drops the ceil(maxSize/10) oldest entries by creation
// timestamp. Callers must hold cacheMu. This is size-driven eviction only,
// triggered at insertion time — it never rescues a hot entry on read.
func (c *Cache) evictOldestLocked() {
	n := (c.maxSize + 9) / 10
	if n < 1 {
		n = 1
	}
	if n > len(c.entries) {
		n = len(c.entries)
	}

	type aged struct {
		fp        fingerprint.Fingerprint
		createdAt time.Time
	}
	candidates := make([]aged, 0, len(c.entries))
	for fp, e := range c.entries {
		candidates = append(candidates, aged{fp, e.createdAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})

	for i := 0; i < n; i++ {
		delete(c.entries, candidates[i].fp)
		metrics.CacheEvictions.Inc()
	}
}

// cleanupLoop periodically removes entries and segment mappings older than
// the configured TTL, until Close is called.
func (c *Cache) cleanupLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *Cache) cleanupExpired() {
	now := time.Now()

	c.cacheMu.Lock()
	for fp, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, fp)
			metrics.CacheEvictions.Inc()
		}
	}
	c.cacheMu.Unlock()

	c.segMu.Lock()
	for fp, m := range c.segments {
		if now.Sub(m.createdAt) > c.ttl {
			delete(c.segments, fp)
		}
	}
	c.segMu.Unlock()
}

// Clear drops every entry and segment mapping.
func (c *Cache) Clear() {
	c.cacheMu.Lock()
	c.entries = make(map[fingerprint.Fingerprint]*entry)
	c.cacheMu.Unlock()

	c.segMu.Lock()
	c.segments = make(map[fingerprint.Fingerprint]*segmentMapping)
	c.segMu.Unlock()
}

// Stats returns a snapshot of entry counts by status plus hit/miss/concat
// counters and overall hit rate.
func (c *Cache) Stats() Stats {
	c.cacheMu.Lock()
	var pending, generating, completed, failed int
	for _, e := range c.entries {
		switch e.status {
		case StatusPending:
			pending++
		case StatusGenerating:
			generating++
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	c.cacheMu.Unlock()

	c.segMu.Lock()
	segCount := len(c.segments)
	c.segMu.Unlock()

	hits := atomic.LoadInt64(&c.hitCount)
	misses := atomic.LoadInt64(&c.missCount)
	concatHits := atomic.LoadInt64(&c.concatHitCount)

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	metrics.CacheEntriesByStatus.WithLabelValues("pending").Set(float64(pending))
	metrics.CacheEntriesByStatus.WithLabelValues("generating").Set(float64(generating))
	metrics.CacheEntriesByStatus.WithLabelValues("completed").Set(float64(completed))
	metrics.CacheEntriesByStatus.WithLabelValues("failed").Set(float64(failed))

	return Stats{
		Pending:         pending,
		Generating:      generating,
		Completed:       completed,
		Failed:          failed,
		SegmentMappings: segCount,
		HitCount:        hits,
		MissCount:       misses,
		ConcatHitCount:  concatHits,
		HitRate:         hitRate,
	}
}
