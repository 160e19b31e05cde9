package members

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coopledger/coopledger/internal/shared"
)

// Handler exposes the member registry JSON API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches member routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{memberID}", h.get)
	r.Put("/{memberID}/active", h.setActive)
}

type createMemberRequest struct {
	Code     string `json:"code" validate:"required"`
	FullName string `json:"fullName" validate:"required"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err)
		return
	}
	m, err := h.service.Create(r.Context(), req.Code, req.FullName)
	if err != nil {
		h.respondErr(w, "create member", err)
		return
	}
	shared.RespondData(w, http.StatusCreated, m)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("members: invalid member id"))
		return
	}
	m, err := h.service.Get(r.Context(), memberID)
	if err != nil {
		h.respondErr(w, "get member", err)
		return
	}
	shared.RespondData(w, http.StatusOK, m)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.respondErr(w, "list members", err)
		return
	}
	shared.RespondData(w, http.StatusOK, out)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("members: invalid member id"))
		return
	}
	var req setActiveRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.SetActive(r.Context(), memberID, req.Active); err != nil {
		h.respondErr(w, "set member active", err)
		return
	}
	shared.RespondData(w, http.StatusOK, map[string]any{"id": memberID, "active": req.Active})
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrMemberNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrCodeTaken):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	shared.RespondError(w, status, err)
}
