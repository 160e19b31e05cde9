package funds

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

// Handler exposes the member funds JSON API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches fund routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.createTransaction)
	r.Post("/transactions/no-posting", h.createTransactionNoPosting)
	r.Get("/{fundID}", h.getFund)
	r.Get("/{fundID}/transactions", h.listTransactions)
}

type journalItemRequest struct {
	AccountID int64           `json:"accountId" validate:"required"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type createTransactionRequest struct {
	FundID        int64                `json:"fundId" validate:"required"`
	Type          string               `json:"type" validate:"required"`
	Amount        decimal.Decimal      `json:"amount" validate:"required"`
	EntryDate     string               `json:"entryDate" validate:"required"`
	JournalType   string               `json:"journalType" validate:"required"`
	ReferenceName string               `json:"referenceName" validate:"required"`
	MemberID      *int64               `json:"memberId,omitempty"`
	Notes         string               `json:"notes"`
	PostedBy      int64                `json:"postedBy"`
	Items         []journalItemRequest `json:"items" validate:"required,min=2,dive"`
}

type createNoPostingRequest struct {
	FundID   int64           `json:"fundId" validate:"required"`
	Type     string          `json:"type" validate:"required"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	LedgerID int64           `json:"ledgerId" validate:"required"`
}

func referenceTypeFor(tt TransactionType) ledger.ReferenceType {
	switch tt {
	case SavingsDeposit:
		return ledger.ReferenceSavingsDeposit
	case SavingsWithdrawal:
		return ledger.ReferenceSavingsWithdrawal
	case ShareCapDeposit:
		return ledger.ReferenceShareCapDeposit
	case ShareCapWithdraw:
		return ledger.ReferenceShareCapWithdraw
	}
	return ledger.ReferenceManualEntry
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.EntryDate)
	if err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, errors.New("funds: entry date must be YYYY-MM-DD"))
		return
	}
	input := PostedInput{
		FundID: req.FundID,
		Type:   TransactionType(req.Type),
		Amount: req.Amount,
		Journal: ledger.PostingInput{
			EntryDate:     date,
			JournalType:   ledger.JournalType(req.JournalType),
			ReferenceName: req.ReferenceName,
			ReferenceType: referenceTypeFor(TransactionType(req.Type)),
			MemberID:      req.MemberID,
			Notes:         req.Notes,
			PostedBy:      req.PostedBy,
		},
	}
	for _, item := range req.Items {
		input.Journal.Items = append(input.Journal.Items, ledger.PostingItemInput{
			AccountID: item.AccountID,
			Debit:     item.Debit,
			Credit:    item.Credit,
		})
	}
	txn, err := h.service.CreateFundTransaction(r.Context(), input)
	if err != nil {
		h.respondErr(w, "create fund transaction", err)
		return
	}
	shared.RespondData(w, http.StatusCreated, txn)
}

func (h *Handler) createTransactionNoPosting(w http.ResponseWriter, r *http.Request) {
	var req createNoPostingRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err)
		return
	}
	txn, err := h.service.CreateFundTransactionNoPosting(r.Context(), NoPostingInput{
		FundID:   req.FundID,
		Type:     TransactionType(req.Type),
		Amount:   req.Amount,
		LedgerID: req.LedgerID,
	})
	if err != nil {
		h.respondErr(w, "create fund transaction (no posting)", err)
		return
	}
	shared.RespondData(w, http.StatusCreated, txn)
}

func (h *Handler) getFund(w http.ResponseWriter, r *http.Request) {
	fundID, err := strconv.ParseInt(chi.URLParam(r, "fundID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("funds: invalid fund id"))
		return
	}
	fund, err := h.service.GetFund(r.Context(), fundID)
	if err != nil {
		h.respondErr(w, "get fund", err)
		return
	}
	shared.RespondData(w, http.StatusOK, fund)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	fundID, err := strconv.ParseInt(chi.URLParam(r, "fundID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("funds: invalid fund id"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txns, err := h.service.ListTransactions(r.Context(), fundID, limit)
	if err != nil {
		h.respondErr(w, "list fund transactions", err)
		return
	}
	shared.RespondData(w, http.StatusOK, txns)
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrFundNotFound), errors.Is(err, ledger.ErrEntryNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrSourceAlreadyLinked):
		status = http.StatusConflict
	case errors.Is(err, ErrAmountNotPositive), errors.Is(err, ledger.ErrUnbalanced), errors.Is(err, ledger.ErrTooFewItems):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	shared.RespondError(w, status, err)
}
