package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/coopledger/coopledger/internal/funds"
	"github.com/coopledger/coopledger/internal/invoices"
	"github.com/coopledger/coopledger/internal/ledger"
	"github.com/coopledger/coopledger/internal/loans"
	"github.com/coopledger/coopledger/internal/members"
	"github.com/coopledger/coopledger/internal/reports"
	"github.com/coopledger/coopledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	LedgerHandler   *ledger.Handler
	FundsHandler    *funds.Handler
	InvoicesHandler *invoices.Handler
	LoansHandler    *loans.Handler
	MembersHandler  *members.Handler
	ReportsHandler  *reports.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.FundsHandler != nil {
		r.Route("/funds", params.FundsHandler.MountRoutes)
	}
	if params.InvoicesHandler != nil {
		r.Route("/invoices", params.InvoicesHandler.MountRoutes)
	}
	if params.LoansHandler != nil {
		r.Route("/loans", params.LoansHandler.MountRoutes)
	}
	if params.MembersHandler != nil {
		r.Route("/members", params.MembersHandler.MountRoutes)
	}
	if params.ReportsHandler != nil {
		r.Route("/reports", params.ReportsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
