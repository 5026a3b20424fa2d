package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/pages"
)

// HandleEvents streams the visit's toasts as Server-Sent Events. The visit
// is disposed when the stream ends.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["visit"]
	rc := http.NewResponseController(w)

	v, toasts, err := s.Visits.Attach(r.Context(), id)
	switch {
	case errors.Is(err, pages.ErrVisitNotFound):
		http.Error(w, msgVisitExpired, http.StatusNotFound)
		return
	case errors.Is(err, pages.ErrAlreadyAttached):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		log.WithField("visit", id).Errorf("❌ realtime subscription failed: %v", err)
		s.Metrics.ObserveBackendError("realtime_subscribe")
		http.Error(w, "realtime unavailable", http.StatusBadGateway)
		return
	}
	defer v.Close()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send("connected", map[string]string{"visit": v.ID, "page": string(v.Page)}); err != nil {
		return
	}
	log.WithFields(log.Fields{"visit": v.ID, "page": v.Page}).Info("📺 toast stream attached")

	heartbeat := time.NewTicker(s.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.WithField("visit", v.ID).Debug("toast stream closed by client")
			return
		case t, ok := <-toasts:
			if !ok {
				return
			}
			if err := send("toast", t); err != nil {
				log.WithField("visit", v.ID).Debugf("toast stream write failed: %v", err)
				return
			}
		case now := <-heartbeat.C:
			if err := send("heartbeat", map[string]int64{"ts": now.UnixMilli()}); err != nil {
				return
			}
		}
	}
}
