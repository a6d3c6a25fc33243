package api

import "net/http"

// HealthResponse is the unauthenticated liveness document.
type HealthResponse struct {
	Status    string `json:"status"`
	DeviceID  string `json:"device_id"`
	DeviceIP  string `json:"device_ip"`
	TempUnit  string `json:"temp_unit"`
	Connected bool   `json:"connected"`
	Version   string `json:"version"`
}

// handleHealth reports the service identity. It never touches the device.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	id := s.service.Identity()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		DeviceID:  id.DeviceID,
		DeviceIP:  id.Address,
		TempUnit:  string(s.service.DisplayUnit()),
		Connected: s.service.Connected(),
		Version:   s.version,
	})
}
