package server

import (
	"encoding/json"
	"net/http"

	"github.com/volundmush/moonsilver/internal/core/storage"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Status is the body of GET /status.
type Status struct {
	State      string   `json:"state"`
	Ticks      uint64   `json:"ticks"`
	Entities   int      `json:"entities"`
	Sessions   int      `json:"sessions"`
	Processors []string `json:"processors"`
	Digest     uint64   `json:"digest"`
}

func (s *Server) routes(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// handleStatus reads the world through the engine so it never races the loop.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := Status{
		State:    s.engine.State().String(),
		Sessions: s.gateway.Len(),
	}
	err := s.engine.Do(func(wd *world.World) error {
		st.Ticks = s.engine.Ticks()
		st.Processors = s.engine.Scheduler().ExecutionOrder()
		st.Entities = wd.Entities()
		var err error
		st.Digest, err = storage.Digest(wd)
		return err
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}
