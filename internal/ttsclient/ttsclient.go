// Package ttsclient talks to the upstream GPT-SoVITS-compatible TTS
// endpoint: one text in, one WAV file out, with retry across rotator
// credentials.
package ttsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/config"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/metrics"
)

// CredentialRotator is the subset of internal/rotator.Rotator the client
// needs; defined here so tests can supply a fake without a real pool.
type CredentialRotator interface {
	Next() (string, error)
	ReportSuccess(token string)
	ReportFailure(token string)
}

// UpstreamExhausted is returned once every retry attempt has failed.
type UpstreamExhausted struct {
	LastError error
}

func (e *UpstreamExhausted) Error() string {
	return fmt.Sprintf("ttsclient: upstream exhausted: %v", e.LastError)
}

func (e *UpstreamExhausted) Unwrap() error { return e.LastError }

type otherParams struct {
	TextLang          string  `json:"text_lang"`
	PromptLang        string  `json:"prompt_lang"`
	Emotion           string  `json:"emotion"`
	TopK              int     `json:"top_k"`
	TopP              float64 `json:"top_p"`
	Temperature       float64 `json:"temperature"`
	TextSplitMethod   string  `json:"text_split_method"`
	BatchSize         int     `json:"batch_size"`
	BatchThreshold    float64 `json:"batch_threshold"`
	SplitBucket       bool    `json:"split_bucket"`
	FragmentInterval  float64 `json:"fragment_interval"`
	ParallelInfer     bool    `json:"parallel_infer"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	SampleSteps       int     `json:"sample_steps"`
	IfSR              bool    `json:"if_sr"`
	Seed              int     `json:"seed"`
}

type requestBody struct {
	Model          string      `json:"model"`
	Input          string      `json:"input"`
	Voice          string      `json:"voice"`
	ResponseFormat string      `json:"response_format"`
	Speed          int         `json:"speed"`
	Instructions   string      `json:"instructions"`
	OtherParams    otherParams `json:"other_params"`
}

// Stats is a snapshot of the client's lifetime request counters.
type Stats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	AvgResponseTimeMs  float64
}

// Client synthesizes text into WAV bytes via an HTTP TTS endpoint, binding
// each retry attempt to a fresh rotator-selected credential.
type Client struct {
	httpClient *http.Client
	rotator    CredentialRotator
	cfg        config.Config

	// sleep is the backoff delay function; overridable in tests so the
	// exponential backoff doesn't make the suite slow.
	sleep func(time.Duration)

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	totalResponseMs    int64
}

// New builds a client that posts to cfg.TTSAPIURL using credentials from
// rot, with a pooled HTTP client sized for one long-lived upstream host.
func New(cfg config.Config, rot CredentialRotator) *Client {
	return &Client{
		httpClient: newPooledHTTPClient(cfg.TTSRequestTimeout),
		rotator:    rot,
		cfg:        cfg,
		sleep:      time.Sleep,
	}
}

// Synthesize turns text into WAV bytes, retrying up to cfg.TTSRetryCount
// additional times (so up to TTSRetryCount+1 total attempts) with a fresh
// credential and 0.5*2^n seconds of backoff after the n-th failed attempt
// (counting from 0), i.e. 0.5s before the second attempt, 1s before the third.
// totalRequests/successfulRequests/failedRequests count once per call, not
// once per attempt, matching the original client's resolved statistics.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	atomic.AddInt64(&c.totalRequests, 1)

	var lastErr error

	maxAttempts := c.cfg.TTSRetryCount + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(0.5*float64(int64(1)<<uint(attempt-1))*1000) * time.Millisecond
			c.sleep(backoff)
		}

		token, err := c.rotator.Next()
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		audio, err := c.doRequest(ctx, token, text)
		elapsed := time.Since(start)

		if err == nil {
			c.rotator.ReportSuccess(token)
			atomic.AddInt64(&c.successfulRequests, 1)
			atomic.AddInt64(&c.totalResponseMs, elapsed.Milliseconds())
			metrics.TTSRequestsTotal.WithLabelValues("success").Inc()
			metrics.TTSLatencySeconds.Observe(elapsed.Seconds())
			return audio, nil
		}

		c.rotator.ReportFailure(token)
		metrics.TTSRequestsTotal.WithLabelValues("failure").Inc()
		slog.Warn("tts attempt failed", "attempt", attempt, "error", err)
		lastErr = err
	}

	atomic.AddInt64(&c.failedRequests, 1)
	return nil, &UpstreamExhausted{LastError: lastErr}
}

func (c *Client) doRequest(ctx context.Context, token, text string) ([]byte, error) {
	body := c.buildRequestBody(text)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ttsclient: encode request: %w", err)
	}

	url := c.cfg.TTSAPIURL + "/v1/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ttsclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ttsclient: transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ttsclient: upstream returned status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ttsclient: read response: %w", err)
	}
	return audio, nil
}

func (c *Client) buildRequestBody(text string) requestBody {
	p := c.cfg.TTSOtherParams
	return requestBody{
		Model:          c.cfg.TTSModel,
		Input:          text,
		Voice:          c.cfg.TTSVoice,
		ResponseFormat: "wav",
		Speed:          1,
		Instructions:   "默认",
		OtherParams: otherParams{
			TextLang:          p.TextLang,
			PromptLang:        p.PromptLang,
			Emotion:           p.Emotion,
			TopK:              p.TopK,
			TopP:              p.TopP,
			Temperature:       p.Temperature,
			TextSplitMethod:   p.TextSplitMethod,
			BatchSize:         p.BatchSize,
			BatchThreshold:    p.BatchThreshold,
			SplitBucket:       p.SplitBucket,
			FragmentInterval:  p.FragmentInterval,
			ParallelInfer:     p.ParallelInfer,
			RepetitionPenalty: p.RepetitionPenalty,
			SampleSteps:       p.SampleSteps,
			IfSR:              p.IfSR,
			Seed:              p.Seed,
		},
	}
}

// Stats returns a snapshot of the client's lifetime counters.
func (c *Client) Stats() Stats {
	total := atomic.LoadInt64(&c.totalRequests)
	successful := atomic.LoadInt64(&c.successfulRequests)
	failed := atomic.LoadInt64(&c.failedRequests)
	responseMs := atomic.LoadInt64(&c.totalResponseMs)

	var avg float64
	if successful > 0 {
		avg = float64(responseMs) / float64(successful)
	}
	return Stats{
		TotalRequests:      total,
		SuccessfulRequests: successful,
		FailedRequests:     failed,
		AvgResponseTimeMs:  avg,
	}
}

// Close releases the client's pooled idle connections. Part of orderly
// shutdown: callers should invoke it once no further Synthesize calls will
// be made.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
