package loans

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

// Handler exposes the loan JSON API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches loan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createLoan)
	r.Post("/{loanID}/repayments", h.postRepayment)
	r.Get("/{loanID}", h.getLoan)
}

type journalItemRequest struct {
	AccountID int64           `json:"accountId" validate:"required"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type journalRequest struct {
	ReferenceName string               `json:"referenceName" validate:"required"`
	JournalType   string               `json:"journalType" validate:"required"`
	Notes         string               `json:"notes"`
	PostedBy      int64                `json:"postedBy"`
	Items         []journalItemRequest `json:"items" validate:"required,min=2,dive"`
}

type createLoanRequest struct {
	MemberID   int64           `json:"memberId" validate:"required"`
	Principal  decimal.Decimal `json:"principal" validate:"required"`
	AnnualRate decimal.Decimal `json:"annualRate"`
	TermMonths int             `json:"termMonths" validate:"required,min=1"`
	Style      string          `json:"style" validate:"required,oneof=annuity straightLine"`
	StartDate  string          `json:"startDate" validate:"required"`
	Journal    *journalRequest `json:"journal,omitempty"`
}

type postRepaymentRequest struct {
	PaymentDate string `json:"paymentDate" validate:"required"`
	Rows        []struct {
		RepaymentID int64           `json:"repaymentId" validate:"required"`
		Principal   decimal.Decimal `json:"principal"`
		Interest    decimal.Decimal `json:"interest"`
	} `json:"rows" validate:"required,min=1,dive"`
	Journal journalRequest `json:"journal" validate:"required"`
}

func (h *Handler) createLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err)
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, errors.New("loans: start date must be YYYY-MM-DD"))
		return
	}
	memberID := req.MemberID
	input := CreateLoanInput{
		MemberID:   req.MemberID,
		Principal:  req.Principal,
		AnnualRate: req.AnnualRate,
		TermMonths: req.TermMonths,
		Style:      AmortizationStyle(req.Style),
		StartDate:  start,
	}
	if req.Journal != nil {
		input.Journal = toPosting(*req.Journal, start, ledger.ReferenceLoanDisbursement, &memberID)
	}
	loan, schedule, err := h.service.CreateLoan(r.Context(), input)
	if err != nil {
		h.respondErr(w, "create loan", err)
		return
	}
	shared.RespondData(w, http.StatusCreated, map[string]any{"loan": loan, "schedule": schedule})
}

func (h *Handler) postRepayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("loans: invalid loan id"))
		return
	}
	var req postRepaymentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, errors.New("loans: payment date must be YYYY-MM-DD"))
		return
	}
	input := RepaymentInput{
		LoanID:      loanID,
		PaymentDate: date,
		Journal:     *toPosting(req.Journal, date, ledger.ReferenceLoanRepayment, nil),
	}
	for _, row := range req.Rows {
		input.Rows = append(input.Rows, RepaymentRowInput{
			RepaymentID: row.RepaymentID,
			Principal:   row.Principal,
			Interest:    row.Interest,
		})
	}
	journalRef, err := h.service.PostRepayment(r.Context(), input)
	if err != nil {
		h.respondErr(w, "post loan repayment", err)
		return
	}
	shared.RespondData(w, http.StatusCreated, map[string]any{"journalRef": journalRef})
}

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, errors.New("loans: invalid loan id"))
		return
	}
	loan, schedule, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		h.respondErr(w, "get loan", err)
		return
	}
	shared.RespondData(w, http.StatusOK, map[string]any{"loan": loan, "schedule": schedule})
}

func toPosting(req journalRequest, date time.Time, ref ledger.ReferenceType, memberID *int64) *ledger.PostingInput {
	posting := &ledger.PostingInput{
		EntryDate:     date,
		JournalType:   ledger.JournalType(req.JournalType),
		ReferenceName: req.ReferenceName,
		ReferenceType: ref,
		MemberID:      memberID,
		Notes:         req.Notes,
		PostedBy:      req.PostedBy,
	}
	for _, item := range req.Items {
		posting.Items = append(posting.Items, ledger.PostingItemInput{
			AccountID: item.AccountID,
			Debit:     item.Debit,
			Credit:    item.Credit,
		})
	}
	return posting
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrLoanNotFound), errors.Is(err, ErrRepaymentNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrRepaymentAlreadyPaid), errors.Is(err, ledger.ErrSourceAlreadyLinked):
		status = http.StatusConflict
	case errors.Is(err, ErrNoRepayments), errors.Is(err, ErrInvalidTerms),
		errors.Is(err, ledger.ErrUnbalanced), errors.Is(err, ledger.ErrTooFewItems):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	shared.RespondError(w, status, err)
}
