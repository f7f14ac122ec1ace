package server

import (
	"net/http"
)

type deviceInfo struct {
	Name string `json:"name"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	names := s.registry.Names()
	devices := make([]deviceInfo, 0, len(names))
	for _, name := range names {
		devices = append(devices, deviceInfo{Name: name})
	}
	respondOK(w, reqID, devices)
}
