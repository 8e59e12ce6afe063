package cache

import (
	"time"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/fingerprint"
)

// segmentMapping links a full reply's fingerprint to the ordered
// fingerprints of the sentences it was split into. It is read-only once
// created; a later submission for the same full text overwrites it
// unconditionally, with no merge or conflict detection.
type segmentMapping struct {
	displayText string
	segments    []fingerprint.Fingerprint
	createdAt   time.Time
}

// truncateDisplay returns the first 100 runes of text, for diagnostics
// only — it is never used as a cache key.
func truncateDisplay(text string) string {
	runes := []rune(text)
	if len(runes) <= 100 {
		return text
	}
	return string(runes[:100])
}
