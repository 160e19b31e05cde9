package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/shared"
)

// Handler exposes the ledger JSON API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.postEntry)
	r.Get("/entries", h.listEntries)
	r.Get("/entries/{id}", h.getEntry)
	r.Post("/entries/{id}/reverse", h.reverseEntry)
	r.Get("/accounts", h.listAccounts)
}

type postItemRequest struct {
	AccountID int64           `json:"accountId" validate:"required"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type postEntryRequest struct {
	EntryDate     string            `json:"entryDate" validate:"required"`
	JournalType   string            `json:"journalType" validate:"required"`
	ReferenceName string            `json:"referenceName" validate:"required"`
	ReferenceType string            `json:"referenceType" validate:"required"`
	MemberID      *int64            `json:"memberId,omitempty"`
	Notes         string            `json:"notes"`
	SourceRef     string            `json:"sourceRef,omitempty"`
	PostedBy      int64             `json:"postedBy"`
	Items         []postItemRequest `json:"items" validate:"required,min=2,dive"`
}

func (req postEntryRequest) toInput() (PostingInput, error) {
	date, err := time.Parse("2006-01-02", req.EntryDate)
	if err != nil {
		return PostingInput{}, errors.New("ledger: entry date must be YYYY-MM-DD")
	}
	sourceRef := uuid.Nil
	if req.SourceRef != "" {
		sourceRef, err = uuid.Parse(req.SourceRef)
		if err != nil {
			return PostingInput{}, errors.New("ledger: source ref must be a UUID")
		}
	}
	input := PostingInput{
		EntryDate:     date,
		JournalType:   JournalType(req.JournalType),
		ReferenceName: req.ReferenceName,
		ReferenceType: ReferenceType(req.ReferenceType),
		MemberID:      req.MemberID,
		Notes:         req.Notes,
		SourceRef:     sourceRef,
		PostedBy:      req.PostedBy,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, PostingItemInput{
			AccountID: item.AccountID,
			Debit:     item.Debit,
			Credit:    item.Credit,
		})
	}
	return input, nil
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	if err := input.Validate(); err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	entry, err := h.service.PostEntry(r.Context(), input)
	if err != nil {
		h.respondErr(w, r, "post entry", err)
		return
	}
	shared.RespondData(w, http.StatusCreated, entry)
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("ledger: invalid entry id"))
		return
	}
	var req struct {
		ActorID int64  `json:"actorId"`
		Notes   string `json:"notes"`
	}
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondError(w, http.StatusBadRequest, err)
			return
		}
	}
	reversal, err := h.service.ReverseEntry(r.Context(), ReverseInput{EntryID: entryID, ActorID: req.ActorID, Notes: req.Notes})
	if err != nil {
		h.respondErr(w, r, "reverse entry", err)
		return
	}
	shared.RespondData(w, http.StatusCreated, reversal)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("ledger: invalid entry id"))
		return
	}
	entry, err := h.service.GetEntry(r.Context(), entryID)
	if err != nil {
		h.respondErr(w, r, "get entry", err)
		return
	}
	shared.RespondData(w, http.StatusOK, entry)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.ListEntries(r.Context(), limit)
	if err != nil {
		h.respondErr(w, r, "list entries", err)
		return
	}
	shared.RespondData(w, http.StatusOK, entries)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondErr(w, r, "list accounts", err)
		return
	}
	shared.RespondData(w, http.StatusOK, accounts)
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrAccountNotFound), errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrSourceAlreadyLinked), errors.Is(err, ErrAlreadyReversed), errors.Is(err, shared.ErrIdempotencyConflict):
		status = http.StatusConflict
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewItems):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	shared.RespondError(w, status, err)
}
