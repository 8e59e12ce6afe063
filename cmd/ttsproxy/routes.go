package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/cache"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/streamsink"
)

type deps struct {
	cache *cache.Cache
	model string
	sink  *streamsink.Handler
}

type speakRequest struct {
	Text           string `json:"text"`
	Model          string `json:"model,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("POST /speak", handleSpeak(d))
	mux.HandleFunc("GET /stats", handleStats(d))
	mux.Handle("GET /ws/stream", d.sink)
}

// handleSpeak is the read-path demo: given full text, return its audio if
// the cache can produce it within budget. A nil result is a boundary
// concern (the core engine never distinguishes "miss" from "timeout" from
// "failed" past this point) so it's surfaced uniformly as a 500.
func handleSpeak(d deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req speakRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Text == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}

		model := req.Model
		if model == "" {
			model = d.model
		}
		timeout := time.Duration(req.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}

		audio := d.cache.Get(r.Context(), req.Text, model, timeout, true)
		if audio == nil {
			http.Error(w, `{"error":"synthesis unavailable"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "audio/wav")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(audio)
	}
}

func handleStats(d deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.cache.Stats())
	}
}
