package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const maxListLimit = 500

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// messageResponse is the {success, message} body used by admin endpoints.
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// parseLimit reads ?limit=, falling back to def. ok is false for values
// outside 1..maxListLimit.
func parseLimit(r *http.Request, def int) (limit int, ok bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxListLimit {
		return 0, false
	}
	return n, true
}
