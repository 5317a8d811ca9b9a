package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/climalert/internal/bus"
	"github.com/good-yellow-bee/climalert/internal/models"
)

// EventAlert is the event name used on the local alert relay.
const EventAlert = "weather-notification"

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	OK(w, s.deps.Stream.Status())
}

// handleSubscribe (re)starts the stream. It is the explicit way out of the
// failed state.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Stream.Resubscribe(); err != nil {
		s.logger.Error().Err(err).Msg("resubscribe")
		JSONError(w, NewUnavailable(err.Error()))
		return
	}
	Accepted(w, s.deps.Stream.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.deps.Stream.Disconnect()
	OK(w, s.deps.Stream.Status())
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	items := s.deps.History.List()
	OK(w, HistoryResponse{Items: items, Total: len(items)})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.Clear(r.Context()); err != nil {
		// The in-memory log is already empty at this point.
		s.logger.Error().Err(err).Msg("clear history")
		JSONError(w, ErrInternalServer)
		return
	}
	NoContent(w)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		JSONError(w, NewValidationError("notification id is required"))
		return
	}

	var req models.StatusUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid request body"))
		return
	}
	status, err := models.ParseNotificationStatus(string(req.Status))
	if err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}

	if err := s.deps.Status.RequestStatusChange(id, status); err != nil {
		JSONError(w, NewUnavailable(err.Error()))
		return
	}
	Accepted(w, StatusChangeResponse{NotificationID: id, Status: string(status)})
}

// handleAlertStream relays live alerts as Server-Sent Events until the
// client goes away or the bus closes.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		JSONError(w, ErrStreamingUnsupported)
		return
	}

	// Relay clients are remote. A stalled one drops alerts instead of
	// blocking the stream.
	sub := s.deps.Alerts.Subscribe(bus.WithDropOnFull())
	defer func() {
		sub.Close()
		if n := sub.Dropped(); n > 0 {
			s.logger.Warn().Uint64("dropped", n).Str("sub", sub.ID()).Msg("relay client fell behind, alerts dropped")
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sse := NewSSEWriter(w, flusher)
	if err := sse.SendRetry(int((3 * time.Second).Milliseconds())); err != nil {
		return
	}

	keepAlive := time.NewTicker(s.config.StreamKeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if err := sse.SendComment("keep-alive"); err != nil {
				return
			}
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error().Err(err).Msg("encode alert for relay")
				continue
			}
			if err := sse.SendEvent(EventAlert, string(data)); err != nil {
				if !errors.Is(err, ctx.Err()) {
					s.logger.Debug().Err(err).Str("sub", sub.ID()).Msg("relay client gone")
				}
				return
			}
		}
	}
}
