package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/hexroom-backend/internal/code"
	"github.com/DoyleJ11/hexroom-backend/internal/gateway"
	"github.com/DoyleJ11/hexroom-backend/internal/store"
)

type roomInfo struct {
	Code    string `json:"roomCode"`
	Members int    `json:"members"`
	Cells   int    `json:"cells"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetRoom lets a client check a typed code before joining over the socket.
func GetRoom(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := code.Normalize(chi.URLParam(r, "code"))
		if !st.Valid(c) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid room code"})
			return
		}

		v, err := st.View(c)
		if errors.Is(err, store.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "room not found"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read room"})
			return
		}

		writeJSON(w, http.StatusOK, roomInfo{Code: v.Code, Members: len(v.Members), Cells: len(v.Cells)})
	}
}

func Stats(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, g.Stats())
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
