package reports

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coopledger/coopledger/internal/shared"
)

// Handler exposes the read-only report JSON API.
type Handler struct {
	service *Service
	export  func(http.ResponseWriter, GeneralLedger) error
	logger  *slog.Logger
}

// NewHandler constructs the handler. exportGL writes the general ledger CSV
// body; it is injected to keep this package free of the export dependency.
func NewHandler(logger *slog.Logger, service *Service, exportGL func(http.ResponseWriter, GeneralLedger) error) *Handler {
	return &Handler{service: service, export: exportGL, logger: logger}
}

// MountRoutes attaches report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/general-ledger", h.generalLedger)
	r.Get("/general-ledger.csv", h.generalLedgerCSV)
	r.Get("/balance-sheet", h.balanceSheet)
	r.Get("/income-statement", h.incomeStatement)
	r.Get("/summary", h.summary)
}

func parseDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) window(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := parseDate(r, "from")
	if err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, errors.New("reports: from must be YYYY-MM-DD"))
		return time.Time{}, time.Time{}, false
	}
	to, err := parseDate(r, "to")
	if err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, errors.New("reports: to must be YYYY-MM-DD"))
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *Handler) generalLedger(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.window(w, r)
	if !ok {
		return
	}
	report, err := h.service.GeneralLedger(r.Context(), from, to)
	if err != nil {
		h.respondErr(w, "general ledger", err)
		return
	}
	shared.RespondData(w, http.StatusOK, report)
}

func (h *Handler) generalLedgerCSV(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.window(w, r)
	if !ok {
		return
	}
	report, err := h.service.GeneralLedger(r.Context(), from, to)
	if err != nil {
		h.respondErr(w, "general ledger csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="general-ledger.csv"`)
	if err := h.export(w, report); err != nil && h.logger != nil {
		h.logger.Error("general ledger csv write", slog.Any("error", err))
	}
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDate(r, "asOf")
	if err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, errors.New("reports: asOf must be YYYY-MM-DD"))
		return
	}
	report, err := h.service.BalanceSheet(r.Context(), asOf)
	if err != nil {
		h.respondErr(w, "balance sheet", err)
		return
	}
	shared.RespondData(w, http.StatusOK, report)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.window(w, r)
	if !ok {
		return
	}
	report, err := h.service.IncomeStatement(r.Context(), from, to)
	if err != nil {
		h.respondErr(w, "income statement", err)
		return
	}
	shared.RespondData(w, http.StatusOK, report)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDate(r, "asOf")
	if err != nil {
		shared.RespondError(w, http.StatusUnprocessableEntity, errors.New("reports: asOf must be YYYY-MM-DD"))
		return
	}
	summary, err := h.service.BuildSummary(r.Context(), asOf)
	if err != nil {
		h.respondErr(w, "report summary", err)
		return
	}
	shared.RespondData(w, http.StatusOK, summary)
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	shared.RespondError(w, http.StatusInternalServerError, err)
}
