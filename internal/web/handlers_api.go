package web

import (
	"encoding/json"
	"net/http"

	"github.com/jirutka/smarwi2mqtt/internal/registry"
)

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.reg.Devices()
	states := make([]registry.DeviceState, 0, len(devices))
	for _, dev := range devices {
		states = append(states, dev.State())
	}
	s.writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.reg.Device(r.PathValue("id"))
	if dev == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, dev.State())
}

type renameDeviceRequest struct {
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleAPIRenameDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.reg.Device(r.PathValue("id"))
	if dev == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}

	var req renameDeviceRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	dev.SetFriendlyName(req.FriendlyName)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "friendly_name": req.FriendlyName})
}

func (s *Server) handleAPIDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.reg.Forget(id); err != nil {
		s.logger.Error("delete device", "err", err, "id", id)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type commandRequest struct {
	Action   string `json:"action"` // "open", "close" or "stop"
	Position *int   `json:"position,omitempty"`
}

func (s *Server) handleAPICommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dev := s.reg.Device(id)
	if dev == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}

	var req commandRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var err error
	switch req.Action {
	case "open":
		pos := 100
		if req.Position != nil {
			pos = *req.Position
		}
		if pos < 0 || pos > 100 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "position must be 0-100"})
			return
		}
		err = dev.Open(r.Context(), pos)
	case "close":
		err = dev.Close(r.Context())
	case "stop":
		err = dev.Stop(r.Context())
	default:
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action"})
		return
	}

	if err != nil {
		s.logger.Error("device command", "err", err, "id", id, "action", req.Action)
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "command failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ridgeFixedRequest struct {
	Fixed bool `json:"fixed"`
}

func (s *Server) handleAPIRidgeFixed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dev := s.reg.Device(id)
	if dev == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}

	var req ridgeFixedRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := dev.SetRidgeFixed(r.Context(), req.Fixed); err != nil {
		s.logger.Error("set ridge_fixed", "err", err, "id", id)
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "command failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIGetFinetune(w http.ResponseWriter, r *http.Request) {
	dev := s.reg.Device(r.PathValue("id"))
	if dev == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, dev.Finetune())
}

type setFinetuneRequest struct {
	Value int `json:"value"`
}

func (s *Server) handleAPISetFinetune(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := r.PathValue("key")
	dev := s.reg.Device(id)
	if dev == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}

	var req setFinetuneRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := dev.SetFinetune(r.Context(), key, req.Value); err != nil {
		s.logger.Error("set finetune", "err", err, "id", id, "key", key)
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
