// Package config loads the speculative-synthesis engine's tunables from
// the process environment, the way cmd/gateway did for the ASR/LLM
// pipeline this proxy grew out of.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the core engine reads. Nothing here is
// persisted; a restart always comes back up with whatever the environment
// says right now.
type Config struct {
	CacheMaxSize         int
	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration

	SplitterMaxLen int
	SplitterMinLen int

	TTSAPIURL         string
	TTSRequestTimeout time.Duration
	TTSRetryCount     int
	TTSVoice          string
	TTSModel          string
	TTSOtherParams    OtherParams

	Tokens []string
}

// OtherParams mirrors the nested other_params object the upstream TTS
// engine expects on every request; every field is configuration-driven,
// never derived from the request text.
type OtherParams struct {
	TextLang          string
	PromptLang        string
	Emotion           string
	TopK              int
	TopP              float64
	Temperature       float64
	TextSplitMethod   string
	BatchSize         int
	BatchThreshold    float64
	SplitBucket       bool
	FragmentInterval  float64
	ParallelInfer     bool
	RepetitionPenalty float64
	SampleSteps       int
	IfSR              bool
	Seed              int
}

// Load reads Config from the environment, applying the defaults documented
// in the external-interfaces section of the proxy's design: cache sized at
// 1000 with a 1-hour TTL and a 5-minute cleanup sweep, a 40/5 splitter, and
// a 60-second TTS timeout with up to 2 retries.
func Load() (Config, error) {
	tokens := splitCSV(envStr("TTS_TOKENS", ""))
	if len(tokens) == 0 {
		return Config{}, fmt.Errorf("config: TTS_TOKENS must list at least one credential")
	}

	cfg := Config{
		CacheMaxSize:         envInt("CACHE_MAX_SIZE", 1000),
		CacheTTL:             envSeconds("CACHE_TTL", 3600),
		CacheCleanupInterval: envSeconds("CACHE_CLEANUP_INTERVAL", 300),

		SplitterMaxLen: envInt("SPLITTER_MAX_LEN", 40),
		SplitterMinLen: envInt("SPLITTER_MIN_LEN", 5),

		TTSAPIURL:         envStr("TTS_API_URL", "http://localhost:9880"),
		TTSRequestTimeout: envSeconds("TTS_REQUEST_TIMEOUT", 60),
		TTSRetryCount:     envInt("TTS_RETRY_COUNT", 2),
		TTSVoice:          envStr("TTS_VOICE", "default"),
		TTSModel:          envStr("TTS_MODEL", "gsv-v2"),

		TTSOtherParams: OtherParams{
			TextLang:          envStr("TTS_TEXT_LANG", "zh"),
			PromptLang:        envStr("TTS_PROMPT_LANG", "zh"),
			Emotion:           envStr("TTS_EMOTION", "默认"),
			TopK:              envInt("TTS_TOP_K", 5),
			TopP:              envFloat("TTS_TOP_P", 1.0),
			Temperature:       envFloat("TTS_TEMPERATURE", 1.0),
			TextSplitMethod:   envStr("TTS_TEXT_SPLIT_METHOD", "cut5"),
			BatchSize:         envInt("TTS_BATCH_SIZE", 1),
			BatchThreshold:    envFloat("TTS_BATCH_THRESHOLD", 0.75),
			SplitBucket:       envBool("TTS_SPLIT_BUCKET", true),
			FragmentInterval:  envFloat("TTS_FRAGMENT_INTERVAL", 0.3),
			ParallelInfer:     envBool("TTS_PARALLEL_INFER", true),
			RepetitionPenalty: envFloat("TTS_REPETITION_PENALTY", 1.35),
			SampleSteps:       envInt("TTS_SAMPLE_STEPS", 32),
			IfSR:              envBool("TTS_IF_SR", false),
			Seed:              envInt("TTS_SEED", -1),
		},

		Tokens: tokens,
	}

	if cfg.CacheMaxSize <= 0 {
		return Config{}, fmt.Errorf("config: CACHE_MAX_SIZE must be positive")
	}
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(envInt(key, fallbackSeconds)) * time.Second
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
