// Package server exposes the service over two transports: a chi HTTP API and
// an MCP stdio server.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/pkg/polymath"
)

// NewRouter creates the chi router with all routes and middleware.
func NewRouter(svc *polymath.Service, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	h := &handler{svc: svc}

	r.Get("/health", h.health)

	r.Route("/items", func(r chi.Router) {
		r.Post("/", h.createItem)
		r.Get("/{type}", h.listItems)
		r.Get("/{type}/{id}", h.getItem)
	})

	r.Post("/suggest", h.suggest)
	r.Post("/search", h.search)

	r.Route("/suggestions", func(r chi.Router) {
		r.Get("/", h.listSuggestions)
		r.Post("/{id}/accept", h.resolveSuggestion(apptype.SuggestionAccepted))
		r.Post("/{id}/dismiss", h.resolveSuggestion(apptype.SuggestionDismissed))
	})

	r.Route("/bridges", func(r chi.Router) {
		r.Post("/detect", h.detectBridges)
		r.Get("/", h.listBridges)
	})

	r.Route("/connections", func(r chi.Router) {
		r.Post("/", h.createConnection)
		r.Get("/", h.listConnections)
		r.Delete("/{id}", h.deleteConnection)
	})

	return r
}

type handler struct {
	svc *polymath.Service
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.HealthCheck(r.Context()))
}

func (h *handler) createItem(w http.ResponseWriter, r *http.Request) {
	var item apptype.KnowledgeItem
	if err := decodeJSON(r, &item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := h.svc.CreateItem(r.Context(), item)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetItem(r.Context(), userID(r), apptype.ItemType(chi.URLParam(r, "type")), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListItems(r.Context(), userID(r), apptype.ItemType(chi.URLParam(r, "type")), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type suggestRequest struct {
	UserID string                `json:"userId"`
	Item   apptype.KnowledgeItem `json:"item"`
}

func (h *handler) suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	suggestions, err := h.svc.SuggestConnections(r.Context(), req.UserID, req.Item)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []apptype.ConnectionSuggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type searchRequest struct {
	UserID    string           `json:"userId"`
	Type      apptype.ItemType `json:"type"`
	Query     string           `json:"query"`
	Threshold float64          `json:"threshold,omitempty"`
	Limit     int              `json:"limit,omitempty"`
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	results, err := h.svc.SearchSimilar(r.Context(), req.UserID, req.Type, req.Query, req.Threshold, req.Limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if results == nil {
		results = []apptype.SimilarItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *handler) listSuggestions(w http.ResponseWriter, r *http.Request) {
	status := apptype.SuggestionStatus(r.URL.Query().Get("status"))
	suggestions, err := h.svc.ListSuggestions(r.Context(), userID(r), status, queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []apptype.ConnectionSuggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type resolveRequest struct {
	UserID string `json:"userId"`
}

func (h *handler) resolveSuggestion(status apptype.SuggestionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		sg, err := h.svc.ResolveSuggestion(r.Context(), req.UserID, chi.URLParam(r, "id"), status)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sg)
	}
}

type detectRequest struct {
	UserID string           `json:"userId"`
	Type   apptype.ItemType `json:"type"`
	ID     string           `json:"id"`
}

func (h *handler) detectBridges(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := h.svc.DetectBridges(r.Context(), req.UserID, req.Type, req.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) listBridges(w http.ResponseWriter, r *http.Request) {
	bridges, err := h.svc.ListBridges(r.Context(), userID(r), r.URL.Query().Get("memory_id"), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if bridges == nil {
		bridges = []apptype.Bridge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bridges": bridges})
}

func (h *handler) createConnection(w http.ResponseWriter, r *http.Request) {
	var conn apptype.Connection
	if err := decodeJSON(r, &conn); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.CreateConnection(r.Context(), &conn); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (h *handler) listConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.svc.ListConnections(r.Context(), userID(r), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if conns == nil {
		conns = []apptype.Connection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

func (h *handler) deleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteConnection(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func userID(r *http.Request) string {
	return r.URL.Query().Get("user_id")
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses:
// invalid input 400, missing rows 404, provider outage 502.
func writeServiceError(w http.ResponseWriter, err error) {
	var provErr *apptype.ProviderError
	switch {
	case errors.Is(err, apptype.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apptype.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &provErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
