package invoices

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger"
	"github.com/coopledger/coopledger/internal/shared"
)

// Handler exposes the invoice JSON API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{invoiceID}/payments", h.postPayment)
	r.Get("/{invoiceID}", h.getInvoice)
	r.Get("/aging", h.aging)
	r.Get("/items/{itemID}/payments", h.listPayments)
}

type paymentItemRequest struct {
	ItemID    int64           `json:"itemId" validate:"required"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
}

type journalItemRequest struct {
	AccountID int64           `json:"accountId" validate:"required"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type postPaymentRequest struct {
	PaymentDate   string               `json:"paymentDate" validate:"required"`
	ReferenceName string               `json:"referenceName" validate:"required"`
	JournalType   string               `json:"journalType" validate:"required"`
	MemberID      *int64               `json:"memberId,omitempty"`
	Notes         string               `json:"notes"`
	PostedBy      int64                `json:"postedBy"`
	Payments      []paymentItemRequest `json:"payments" validate:"required,min=1,dive"`
	Items         []journalItemRequest `json:"items" validate:"required,min=2,dive"`
}

func (h *Handler) postPayment(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("invoices: invalid invoice id"))
		return
	}
	var req postPaymentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, errors.New("invoices: payment date must be YYYY-MM-DD"))
		return
	}
	input := PaymentInput{
		InvoiceID:   invoiceID,
		PaymentDate: date,
		Journal: ledger.PostingInput{
			EntryDate:     date,
			JournalType:   ledger.JournalType(req.JournalType),
			ReferenceName: req.ReferenceName,
			ReferenceType: ledger.ReferenceInvoicePayment,
			MemberID:      req.MemberID,
			Notes:         req.Notes,
			PostedBy:      req.PostedBy,
		},
	}
	for _, p := range req.Payments {
		input.Payments = append(input.Payments, ItemPaymentInput{
			ItemID:    p.ItemID,
			Principal: p.Principal,
			Interest:  p.Interest,
		})
	}
	for _, item := range req.Items {
		input.Journal.Items = append(input.Journal.Items, ledger.PostingItemInput{
			AccountID: item.AccountID,
			Debit:     item.Debit,
			Credit:    item.Credit,
		})
	}
	result, err := h.service.PostPayment(r.Context(), input)
	if err != nil {
		h.respondErr(w, "post invoice payment", err)
		return
	}
	shared.RespondData(w, http.StatusCreated, result)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("invoices: invalid invoice id"))
		return
	}
	invoice, items, err := h.service.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.respondErr(w, "get invoice", err)
		return
	}
	shared.RespondData(w, http.StatusOK, map[string]any{"invoice": invoice, "items": items})
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			shared.RespondError(w, http.StatusUnprocessableEntity, errors.New("invoices: asOf must be YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}
	report, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.respondErr(w, "aging report", err)
		return
	}
	shared.RespondData(w, http.StatusOK, report)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("invoices: invalid item id"))
		return
	}
	payments, err := h.service.ListPayments(r.Context(), itemID)
	if err != nil {
		h.respondErr(w, "list item payments", err)
		return
	}
	shared.RespondData(w, http.StatusOK, payments)
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrItemNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrSourceAlreadyLinked):
		status = http.StatusConflict
	case errors.Is(err, ErrNoPayments), errors.Is(err, ErrPaymentNotPositive),
		errors.Is(err, ledger.ErrUnbalanced), errors.Is(err, ledger.ErrTooFewItems):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	shared.RespondError(w, status, err)
}
