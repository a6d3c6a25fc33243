package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
)

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Command string `json:"command"`
	Value   any    `json:"value"`
}

// RawWriteRequest is the body of POST /raw.
type RawWriteRequest struct {
	Index int `json:"dp"`
	Value any `json:"value"`
}

// handleGetStatus returns the canonical status. ?refresh=true bypasses the cache.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "refresh must be a boolean")
			return
		}
		refresh = b
	}
	writeJSON(w, http.StatusOK, s.service.QueryStatus(r.Context(), refresh))
}

// handleCommand validates, writes and confirms one command.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	res, err := s.service.Apply(r.Context(), tuya.SourceAPI, req.Command, req.Value)
	s.writeCommandResult(w, res, err)
}

// handleRawWrite writes a device-native value to any datapoint.
func (s *Server) handleRawWrite(w http.ResponseWriter, r *http.Request) {
	var req RawWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.service.WriteRaw(r.Context(), tuya.SourceAPI, req.Index, req.Value)
	s.writeCommandResult(w, res, err)
}

func (s *Server) writeCommandResult(w http.ResponseWriter, res *tuya.CommandResult, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case tuya.IsValidation(err), errors.Is(err, tuya.ErrInvalidValue):
		writeValidationError(w, err)
	default:
		s.logger.Warn("command failed", "error", err)
		writeInternalError(w, "failed to send command")
	}
}

// handleReconnect drops the device session and opens a new one.
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if !s.service.Reconnect(r.Context()) {
		writeInternalError(w, "failed to reconnect")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Reconnected successfully",
	})
}

// handleListDatapoints returns the datapoint table in index order.
func (s *Server) handleListDatapoints(w http.ResponseWriter, _ *http.Request) {
	descriptors := s.service.Table().Descriptors()
	writeJSON(w, http.StatusOK, map[string]any{
		"datapoints": descriptors,
		"count":      len(descriptors),
		"temp_unit":  s.service.DisplayUnit(),
	})
}
