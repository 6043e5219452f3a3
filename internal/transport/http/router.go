package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"wordfall-service/internal/app"
	"wordfall-service/internal/domain"
	"wordfall-service/internal/logging"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter mounts the websocket endpoint and the small JSON API.
func NewRouter(service *app.GameService, defaultBankID string, logger *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(withLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	// Websocket connections live as long as the game; no handler timeout.
	r.Get("/ws", NewWSHandler(service, defaultBankID).ServeWS)

	api := &apiHandler{service: service}
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Get("/banks/{id}", api.bank)
		r.Get("/sessions/{id}", api.snapshot)
		r.Get("/sessions/{id}/summary", api.summary)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: "not found: " + r.URL.Path})
	})
	return r
}

func withLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger.With("request_id", chimw.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), l)))
		})
	}
}

type apiHandler struct {
	service *app.GameService
}

func (h *apiHandler) bank(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Bank(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *apiHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *apiHandler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBankNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrRoundNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidBank),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Named("transport.http").Errorw("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
