package handlers

import (
	"net/http"

	"github.com/nkiryanov/yieldmart/internal/handlers/render"
)

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, map[string]string{"status": "ok"})
	}
}
