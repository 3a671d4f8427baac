package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/ratewatch/ratewatch/internal/errors"
	"github.com/ratewatch/ratewatch/internal/notify"
	"github.com/ratewatch/ratewatch/internal/observability"
)

const (
	defaultStreamBuffer = 32

	// HeartbeatInterval keeps idle streams open through intermediaries.
	HeartbeatInterval = 15 * time.Second
)

// SetSSEHeaders prepares w for a server-sent event stream.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteSSEEvent writes one named event and flushes it.
func WriteSSEEvent(w http.ResponseWriter, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return http.NewResponseController(w).Flush()
}

// StreamEvents pushes state changes to one surface. The first event is a
// snapshot of every live rate limit.
func (a *API) StreamEvents(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.URL.Query().Get("origin")
	}

	size := a.BufferSize
	if size <= 0 {
		size = defaultStreamBuffer
	}
	sub := notify.NewChannelSubscriber(origin, size)
	defer sub.Close()

	unsubscribe, err := a.Broker.Subscribe(sub)
	if err != nil {
		if errors.Is(err, notify.ErrOriginNotAllowed) {
			respondWithError(w, r, apperrors.NewForbiddenError("origin not allowed: "+origin))
			return
		}
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "subscribe failed"))
		return
	}
	defer unsubscribe()

	statuses, err := a.Tracker.List(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "stream setup failed"))
		return
	}

	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := observability.ServerLogger
	send := func(msg notify.Message) bool {
		data, err := json.Marshal(msg)
		if err != nil {
			return false
		}
		if err := WriteSSEEvent(w, string(msg.Event), data); err != nil {
			if logger != nil {
				logger.Debug("Event stream write failed",
					zap.String("subscriber", sub.ID()),
					zap.Error(err))
			}
			return false
		}
		return true
	}

	if !send(notify.Message{
		Event:     notify.EventSnapshot,
		Statuses:  statuses,
		Timestamp: a.now().UnixMilli(),
	}) {
		return
	}

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok || !send(msg) {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
