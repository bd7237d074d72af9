package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mimcmahon20/Shelly/internal/live"
)

// sseWriter пишет кадры Server-Sent Events.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// newSSE отправляет заголовки потока событий.
func newSSE(w http.ResponseWriter) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &sseWriter{w: w, rc: http.NewResponseController(w)}
	s.flush()
	return s
}

// Event пишет кадр "event: <type>\ndata: <json>\n\n".
func (s *sseWriter) Event(e live.Event) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Type, e.Data); err != nil {
		return err
	}
	return s.flush()
}

// Comment пишет SSE-комментарий (heartbeat).
func (s *sseWriter) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// wantsStream — клиент запросил поток событий.
func wantsStream(r *http.Request) bool {
	return r.Header.Get("Accept") == "text/event-stream"
}

// streamEvents пересылает события в SSE до терминального события,
// закрытия канала или отключения клиента.
//
// Если канал закрылся раньше терминального события, последним кадром
// идёт interrupted: поток не обрывается молча.
func (h *Handler) streamEvents(r *http.Request, sse *sseWriter, runID string, events <-chan live.Event) {
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	var lastSeq int64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := sse.Comment("ping"); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				h.interrupted(r, sse, runID, lastSeq)
				return
			}
			if err := sse.Event(event); err != nil {
				h.logger.Debug("sse client gone", "error", err)
				return
			}
			lastSeq = event.Seq
			if event.Terminal() {
				return
			}
		}
	}
}

func (h *Handler) interrupted(r *http.Request, sse *sseWriter, runID string, lastSeq int64) {
	if r.Context().Err() != nil {
		return
	}
	h.logger.Warn("live subscription closed before run finished", "run_id", runID, "last_seq", lastSeq)

	event, err := live.NewEvent(runID, live.EventInterrupted, live.InterruptedData{RunID: runID, LastSeq: lastSeq})
	if err != nil {
		return
	}
	if err := sse.Event(event); err != nil {
		h.logger.Debug("sse client gone", "error", err)
	}
}
