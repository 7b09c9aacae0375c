package httpadmin

import (
	"context"
	"encoding/json"
	"net/http"
)

// Rerunner starts an extraction run and reports its id.
type Rerunner interface {
	Rerun(ctx context.Context) (runID string, err error)
}

type Server struct {
	rr Rerunner
}

func New(rr Rerunner) *Server { return &Server{rr: rr} }

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/rerun", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		runID, err := s.rr.Rerun(r.Context())
		if err != nil {
			http.Error(w, "run failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "run_id": runID})
	})
}
