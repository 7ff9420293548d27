package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/hexroom-backend/internal/cell"
	"github.com/DoyleJ11/hexroom-backend/internal/event"
	"github.com/DoyleJ11/hexroom-backend/internal/gateway"
	"github.com/DoyleJ11/hexroom-backend/internal/session"
	"github.com/DoyleJ11/hexroom-backend/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *store.Store, *gateway.Gateway) {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := store.New(context.Background(), log, store.Options{})
	t.Cleanup(st.Shutdown)
	g := gateway.New(st, session.NewRegistry(), log)
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return SetupRoutes(st, g, ws, log), st, g
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestRouter(t)
	assert.Equal(t, http.StatusOK, do(t, h, "/healthz").Code)
}

func TestWebsocketRouteIsMounted(t *testing.T) {
	h, _, _ := newTestRouter(t)
	assert.Equal(t, http.StatusTeapot, do(t, h, "/ws").Code)
}

func TestGetRoom(t *testing.T) {
	h, st, _ := newTestRouter(t)

	owner := make(event.Chan, 8)
	c, err := st.Create("owner", owner)
	require.NoError(t, err)
	require.True(t, st.UpdateHexState(c, "owner", "0,0", cell.State{"height": 1.0}))
	require.True(t, st.UpdateHexState(c, "owner", "1,0", cell.State{"height": 3.0}))

	rec := do(t, h, "/rooms/"+c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body roomInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, roomInfo{Code: c, Members: 1, Cells: 2}, body)
}

func TestGetRoom_Errors(t *testing.T) {
	h, _, _ := newTestRouter(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown code", "/rooms/ZZZZZ", http.StatusNotFound},
		{"lowercase unknown code", "/rooms/zzzzz", http.StatusNotFound},
		{"wrong length", "/rooms/ABC", http.StatusBadRequest},
		{"bad alphabet", "/rooms/AB-12", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.path)
			assert.Equal(t, tt.status, rec.Code)

			var body errorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestStats(t *testing.T) {
	h, _, g := newTestRouter(t)

	out := make(event.Chan, 8)
	g.Connect("c1", out)
	require.NoError(t, g.Handle("c1", gateway.CreateRoom{}))

	rec := do(t, h, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var s gateway.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	assert.Equal(t, gateway.Stats{Rooms: 1, Sessions: 1}, s)
}
