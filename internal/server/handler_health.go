package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	GoVersion string   `json:"go_version"`
	Uptime    string   `json:"uptime"`
	Store     string   `json:"store"`
	Devices   []string `json:"devices"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	storeState := "disabled"
	if s.store != nil {
		storeState = "available"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     storeState,
		Devices:   s.registry.Names(),
	})
}
