// Package splitter turns an append-only stream of LLM text fragments into a
// lazy sequence of sentence-sized units suitable for individual TTS
// synthesis, without waiting for the stream to end.
package splitter

import (
	"strings"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/metrics"
)

const (
	// DefaultMaxLen is the soft-maximum effective length: a separator
	// punctuation block only closes a sentence once the accumulated text
	// has grown at least this long.
	DefaultMaxLen = 40

	// DefaultMinLen is the hard-minimum effective length: a terminator
	// punctuation block is ignored (no emission) below this length.
	DefaultMinLen = 5
)

// terminators end a sentence outright once the minimum length is met.
var terminators = map[rune]bool{
	'。': true, '！': true, '？': true, '…': true,
	'.': true, '!': true, '?': true,
}

// separators only force a cut once the text has grown past the maximum
// length; they never end a sentence on their own.
var separators = map[rune]bool{
	'，': true, '、': true, '；': true, '：': true, '—': true,
	',': true, ';': true, ':': true,
	'"': true, '“': true, '”': true,
	'\'': true, '‘': true, '’': true,
}

func isPunctuation(r rune) bool {
	return terminators[r] || separators[r]
}

// containsTerminator reports whether a punctuation block should be treated
// as a sentence terminator — true if any rune in it is a terminator.
func containsTerminator(block string) bool {
	for _, r := range block {
		if terminators[r] {
			return true
		}
	}
	return false
}

// effectiveLength sums per-rune widths over the non-punctuation runes of s:
// width 1 for code points below 128, width 2 otherwise. Punctuation runes
// contribute nothing, so "你好……。……。" has the same effective length as
// "你好" despite being much longer.
func effectiveLength(s string) int {
	length := 0
	for _, r := range s {
		if isPunctuation(r) {
			continue
		}
		if r < 128 {
			length++
		} else {
			length += 2
		}
	}
	return length
}

// token is one element of the alternating text-run / punctuation-block
// tokenization of a buffer.
type token struct {
	text    string
	isPunct bool
}

// tokenize splits s into a sequence of maximal runs, alternating between
// non-punctuation text and punctuation blocks.
func tokenize(s string) []token {
	runes := []rune(s)
	tokens := make([]token, 0, 4)
	i := 0
	for i < len(runes) {
		punct := isPunctuation(runes[i])
		j := i + 1
		for j < len(runes) && isPunctuation(runes[j]) == punct {
			j++
		}
		tokens = append(tokens, token{text: string(runes[i:j]), isPunct: punct})
		i = j
	}
	return tokens
}

// Splitter is a stateful stream-to-sentence transducer. One instance is
// owned by a single client stream and discarded when the stream ends.
type Splitter struct {
	buf    strings.Builder
	maxLen int
	minLen int
}

// New creates a splitter with the given soft-maximum and hard-minimum
// effective lengths. A zero maxLen or minLen falls back to the package
// defaults.
func New(maxLen, minLen int) *Splitter {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if minLen <= 0 {
		minLen = DefaultMinLen
	}
	return &Splitter{maxLen: maxLen, minLen: minLen}
}

// Feed appends a fragment to the buffer and returns any sentences that
// became complete as a result. It may return an empty slice.
func (s *Splitter) Feed(fragment string) []string {
	if fragment == "" {
		return nil
	}
	s.buf.WriteString(fragment)
	return s.trySplit()
}

// trySplit re-tokenizes the whole buffer and emits every boundary it finds,
// leaving the residual (everything after the last emission) as the new
// buffer contents.
func (s *Splitter) trySplit() []string {
	raw := s.buf.String()
	if raw == "" {
		return nil
	}
	clean := strings.ReplaceAll(raw, "\n", "")
	tokens := tokenize(clean)

	var sentences []string
	var accum strings.Builder

	for i, tok := range tokens {
		accum.WriteString(tok.text)
		if !tok.isPunct {
			continue
		}
		// The last token of the pass may still grow with the next
		// fragment, so it never triggers a boundary check.
		if i == len(tokens)-1 {
			continue
		}

		length := effectiveLength(accum.String())
		if containsTerminator(tok.text) {
			if length >= s.minLen {
				sentences = append(sentences, strings.TrimSpace(accum.String()))
				accum.Reset()
			}
		} else if length >= s.maxLen {
			sentences = append(sentences, strings.TrimSpace(accum.String()))
			accum.Reset()
		}
	}

	s.buf.Reset()
	s.buf.WriteString(accum.String())
	metrics.SentencesEmitted.Add(float64(len(sentences)))
	return sentences
}

// Flush returns the current buffer, trimmed, and clears it. The second
// return value is false if the buffer had zero effective length (e.g. it
// held only punctuation or whitespace), in which case the string is empty
// and should not be treated as a sentence.
func (s *Splitter) Flush() (string, bool) {
	remaining := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if remaining != "" && effectiveLength(remaining) > 0 {
		return remaining, true
	}
	return "", false
}

// Reset clears the buffer unconditionally.
func (s *Splitter) Reset() {
	s.buf.Reset()
}

// SplitText is the non-streaming convenience form: reset, feed the whole
// text, then flush.
func (s *Splitter) SplitText(text string) []string {
	s.Reset()
	sentences := s.Feed(text)
	if remaining, ok := s.Flush(); ok {
		sentences = append(sentences, remaining)
	}
	return sentences
}
