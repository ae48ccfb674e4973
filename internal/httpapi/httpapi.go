// Package httpapi is the non-realtime HTTP surface: health, diagnostics,
// and the world admin endpoints backed by the persistence store.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tilebound/server"
	"tilebound/server/internal/auth"
	"tilebound/server/internal/store"
)

type API struct {
	registry *server.Registry
	store    store.Store
	decoder  auth.TokenDecoder
	log      zerolog.Logger
}

func New(registry *server.Registry, st store.Store, decoder auth.TokenDecoder, log zerolog.Logger) *API {
	return &API{registry: registry, store: st, decoder: decoder, log: log}
}

// Routes mounts the API on a chi router.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)
	r.Get("/diagnostics", a.handleDiagnostics)
	r.Route("/api/worlds", func(r chi.Router) {
		r.Get("/", a.handleListWorlds)
		r.Post("/", a.handleCreateWorld)
		r.Delete("/{worldID}", a.handleDeleteWorld)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (a *API) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status     string                   `json:"status"`
		ServerTime int64                    `json:"serverTime"`
		TickRate   int                      `json:"tickRate"`
		Rooms      []server.RoomDiagnostics `json:"rooms"`
	}{
		Status:     "ok",
		ServerTime: time.Now().UnixMilli(),
		TickRate:   server.TickRate,
		Rooms:      a.registry.Diagnostics(),
	})
}

// identify decodes the bearer token on an admin request.
func (a *API) identify(r *http.Request) (auth.Identity, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return auth.Identity{}, false
	}
	identity, err := a.decoder.Decode(token)
	if err != nil {
		return auth.Identity{}, false
	}
	return identity, true
}

func (a *API) handleListWorlds(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.identify(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	worlds, err := a.store.ListWorlds(r.Context(), identity.AccountID)
	if err != nil {
		a.log.Error().Err(err).Msg("list worlds failed")
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if worlds == nil {
		worlds = []store.WorldSave{}
	}
	writeJSON(w, http.StatusOK, worlds)
}

type createWorldRequest struct {
	Name string `json:"name"`
	Seed string `json:"seed,omitempty"`
}

func (a *API) handleCreateWorld(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.identify(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	var req createWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	seed := strings.TrimSpace(req.Seed)
	if seed == "" {
		seed = req.Name
	}
	world, err := a.store.CreateWorld(r.Context(), identity.AccountID, req.Name, seed, nil)
	if err != nil {
		a.log.Error().Err(err).Msg("create world failed")
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, world)
}

func (a *API) handleDeleteWorld(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.identify(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	worldID := chi.URLParam(r, "worldID")

	world, err := a.store.GetWorld(r.Context(), worldID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "world not found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Msg("load world failed")
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if world.OwnerAccountID != identity.AccountID {
		writeError(w, http.StatusForbidden, "not the world owner")
		return
	}
	if a.registry.Live(worldID) {
		writeError(w, http.StatusConflict, "world has a live room")
		return
	}
	if err := a.store.DeleteWorld(r.Context(), worldID); err != nil {
		a.log.Error().Err(err).Msg("delete world failed")
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
