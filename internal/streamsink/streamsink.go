// Package streamsink is a thin illustration of the write path: it takes an
// LLM fragment stream over a WebSocket, runs it through the splitter, and
// hands the resulting sentences to the cache as they complete. The HTTP/WS
// surface itself, and the actual LLM-upstream forwarding, are someone
// else's concern — this just shows the shape a caller would drive the core
// engine through.
package streamsink

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/fingerprint"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/splitter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CacheSubmitter is the subset of cache.Cache this package depends on.
type CacheSubmitter interface {
	SubmitWithSegments(fullText string, segments []string, model string) fingerprint.Fingerprint
}

// frame is one JSON text frame of the stream protocol: either a fragment
// of LLM output, or the end-of-stream marker.
type frame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Handler upgrades incoming connections and runs one splitter+submit
// session per connection.
type Handler struct {
	cache  CacheSubmitter
	model  string
	maxLen int
	minLen int
}

// Config holds the per-handler splitter tuning and default model.
type Config struct {
	Model          string
	SplitterMaxLen int
	SplitterMinLen int
}

// NewHandler builds a streamsink handler bound to a cache submitter.
func NewHandler(cache CacheSubmitter, cfg Config) *Handler {
	return &Handler{
		cache:  cache,
		model:  cfg.Model,
		maxLen: cfg.SplitterMaxLen,
		minLen: cfg.SplitterMinLen,
	}
}

// ServeHTTP upgrades the connection and runs the session to completion.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("streamsink: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	sessionID := uuid.NewString()
	sp := splitter.New(h.maxLen, h.minLen)

	var full strings.Builder
	var sentences []string

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			slog.Info("streamsink: session ended", "session", sessionID, "error", err)
			return
		}

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			slog.Warn("streamsink: bad frame", "session", sessionID, "error", err)
			continue
		}

		switch f.Type {
		case "fragment":
			full.WriteString(f.Text)
			sentences = append(sentences, sp.Feed(f.Text)...)

		case "end":
			if remaining, ok := sp.Flush(); ok {
				sentences = append(sentences, remaining)
			}
			fp := h.cache.SubmitWithSegments(full.String(), sentences, h.model)
			slog.Info("streamsink: stream closed", "session", sessionID, "fingerprint", fp.Short(), "sentences", len(sentences))
			_ = conn.WriteJSON(map[string]string{"fingerprint": string(fp)})
			return

		default:
			slog.Warn("streamsink: unknown frame type", "session", sessionID, "type", f.Type)
		}
	}
}
