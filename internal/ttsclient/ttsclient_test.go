package ttsclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/config"
)

// fakeRotator hands out its tokens in order, cycling, and records what was reported back,
// so tests can assert on retry/credential-rotation behavior without a real
// pool.
type fakeRotator struct {
	tokens    []string
	idx       int
	successes []string
	failures  []string
}

func (f *fakeRotator) Next() (string, error) {
	if len(f.tokens) == 0 {
		return "", errors.New("fakeRotator: empty pool")
	}
	tok := f.tokens[f.idx%len(f.tokens)]
	f.idx++
	return tok, nil
}

func (f *fakeRotator) ReportSuccess(token string) { f.successes = append(f.successes, token) }
func (f *fakeRotator) ReportFailure(token string) { f.failures = append(f.failures, token) }

func baseConfig(apiURL string) config.Config {
	return config.Config{
		TTSAPIURL:         apiURL,
		TTSRequestTimeout: 2 * time.Second,
		TTSRetryCount:     2,
		TTSVoice:          "default",
		TTSModel:          "gsv-v2",
		TTSOtherParams: config.OtherParams{
			TextLang:   "zh",
			PromptLang: "zh",
			Emotion:    "默认",
		},
	}
}

func TestSynthesizeSucceedsOnFirstAttempt(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("RIFF-fake-wav-bytes"))
	}))
	defer srv.Close()

	rot := &fakeRotator{tokens: []string{"tok-a"}}
	client := New(baseConfig(srv.URL), rot)
	client.sleep = func(time.Duration) {}

	audio, err := client.Synthesize(context.Background(), "你好")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF-fake-wav-bytes"), audio)
	assert.Equal(t, "Bearer tok-a", gotAuth)
	assert.Equal(t, "/v1/audio/speech", gotPath)
	assert.Equal(t, []string{"tok-a"}, rot.successes)
	assert.Empty(t, rot.failures)
}

func TestSynthesizeRetriesWithFreshCredentialOnFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok-wav"))
	}))
	defer srv.Close()

	rot := &fakeRotator{tokens: []string{"tok-a", "tok-b"}}
	client := New(baseConfig(srv.URL), rot)
	client.sleep = func(time.Duration) {}

	audio, err := client.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok-wav"), audio)
	assert.Equal(t, []string{"tok-a"}, rot.failures)
	assert.Equal(t, []string{"tok-b"}, rot.successes)
}

func TestSynthesizeReturnsUpstreamExhaustedAfterAllRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rot := &fakeRotator{tokens: []string{"tok-a", "tok-b", "tok-c"}}
	cfg := baseConfig(srv.URL)
	cfg.TTSRetryCount = 2
	client := New(cfg, rot)
	client.sleep = func(time.Duration) {}

	_, err := client.Synthesize(context.Background(), "hi")
	require.Error(t, err)
	var exhausted *UpstreamExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, rot.failures, 3) // TTSRetryCount+1 total attempts
}

func TestBuildRequestBodyMatchesUpstreamSchema(t *testing.T) {
	cfg := baseConfig("http://example.invalid")
	cfg.TTSOtherParams.TopK = 5
	client := New(cfg, &fakeRotator{tokens: []string{"t"}})

	body := client.buildRequestBody("hello")
	assert.Equal(t, "gsv-v2", body.Model)
	assert.Equal(t, "hello", body.Input)
	assert.Equal(t, "default", body.Voice)
	assert.Equal(t, "wav", body.ResponseFormat)
	assert.Equal(t, 1, body.Speed)
	assert.Equal(t, "默认", body.Instructions)
	assert.Equal(t, 5, body.OtherParams.TopK)
}

func TestStatsTracksTotalsAndAverageLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("wav"))
	}))
	defer srv.Close()

	rot := &fakeRotator{tokens: []string{"tok-a"}}
	client := New(baseConfig(srv.URL), rot)
	client.sleep = func(time.Duration) {}

	_, err := client.Synthesize(context.Background(), "hi")
	require.NoError(t, err)

	stats := client.Stats()
	assert.EqualValues(t, 1, stats.TotalRequests)
	assert.EqualValues(t, 1, stats.SuccessfulRequests)
	assert.EqualValues(t, 0, stats.FailedRequests)
}
