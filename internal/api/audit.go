package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-minisplit/internal/audit"
)

// handleListCommands returns the command log, newest first.
//
// Query parameters:
//   - command: filter by command name
//   - source: filter by origin (api, mqtt, cli)
//   - success: true or false
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command log not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Command: q.Get("command"),
		Source:  q.Get("source"),
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "success must be a boolean")
			return
		}
		filter.Success = &b
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.commands.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list commands", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
