package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/cache"
)

type stubSynth struct {
	audio []byte
	err   error
}

func (s *stubSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return s.audio, s.err
}

func TestHandleSpeakReturnsAudioOnSuccess(t *testing.T) {
	c := cache.New(100, time.Hour, time.Hour, &stubSynth{audio: []byte("RIFFfake")})
	defer c.Close()

	mux := http.NewServeMux()
	registerRoutes(mux, deps{cache: c, model: "m1"})

	body, _ := json.Marshal(speakRequest{Text: "hello", TimeoutSeconds: 2})
	req := httptest.NewRequest(http.MethodPost, "/speak", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("RIFFfake"), w.Body.Bytes())
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
}

func TestHandleSpeakReturns500WhenSynthesisUnavailable(t *testing.T) {
	c := cache.New(100, time.Hour, time.Hour, &stubSynth{err: assertErr})
	defer c.Close()

	mux := http.NewServeMux()
	registerRoutes(mux, deps{cache: c, model: "m1"})

	body, _ := json.Marshal(speakRequest{Text: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/speak", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleSpeakRejectsEmptyText(t *testing.T) {
	c := cache.New(100, time.Hour, time.Hour, &stubSynth{})
	defer c.Close()

	mux := http.NewServeMux()
	registerRoutes(mux, deps{cache: c, model: "m1"})

	body, _ := json.Marshal(speakRequest{Text: ""})
	req := httptest.NewRequest(http.MethodPost, "/speak", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStatsReturnsJSON(t *testing.T) {
	c := cache.New(100, time.Hour, time.Hour, &stubSynth{audio: []byte("RIFFfake")})
	defer c.Close()

	mux := http.NewServeMux()
	registerRoutes(mux, deps{cache: c, model: "m1"})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
}

var assertErr = errTestSynth{}

type errTestSynth struct{}

func (errTestSynth) Error() string { return "synth: boom" }
