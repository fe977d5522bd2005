package devserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func Routes(h *Hub, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/creategame", CreateGame(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", Handler(h, logger))
	return r
}

// CreateGame opens a room and answers {"id": ...}.
func CreateGame(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := h.Create()
		if err != nil {
			http.Error(w, "failed to create game", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			ID string `json:"id"`
		}{ID: rm.ID()})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
