package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/yieldmart/internal/handlers/render"
)

// uuidParam reads the path parameter; renders 400 and returns false if it is not an uuid
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		render.ServiceError(w, "Invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// limitParam reads optional ?limit; 0 when absent
func limitParam(w http.ResponseWriter, r *http.Request, maxLimit int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxLimit {
		render.ServiceError(w, "limit must be an integer in 1.."+strconv.Itoa(maxLimit), http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}
