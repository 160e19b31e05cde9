package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger"
	"github.com/coopledger/coopledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, invoiceID int64) (Invoice, []InvoiceItem, error)
	ListOutstanding(ctx context.Context, asOf time.Time) ([]Invoice, error)
	ListPayments(ctx context.Context, itemID int64) ([]ItemPayment, error)
}

// LedgerPoster posts journal entries inside a caller-owned transaction.
type LedgerPoster interface {
	PostEntryInTx(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput) (ledger.JournalEntry, error)
}

// AuditPort records invoice events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates invoice payment postings.
type Service struct {
	repo   RepositoryPort
	poster LedgerPoster
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the invoices service.
func NewService(repo RepositoryPort, poster LedgerPoster, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, poster: poster, audit: audit, logger: logger, now: time.Now}
}

// ItemPaymentInput applies principal and interest to one invoice item.
type ItemPaymentInput struct {
	ItemID    int64
	Principal decimal.Decimal
	Interest  decimal.Decimal
}

// PaymentInput describes a payment posting against an invoice.
type PaymentInput struct {
	InvoiceID   int64
	PaymentDate time.Time
	Payments    []ItemPaymentInput
	Journal     ledger.PostingInput
}

// PaymentResult reports the posting outcome.
type PaymentResult struct {
	Invoice     Invoice
	Payments    []ItemPayment
	LedgerID    int64
	SettledItem []int64
}

// PostPayment applies a payment to invoice items inside one transaction:
// journal entry plus items, payment rows, item settlement flags, and the
// clamped outstanding decrement commit or abort together.
func (s *Service) PostPayment(ctx context.Context, input PaymentInput) (PaymentResult, error) {
	if len(input.Payments) == 0 {
		return PaymentResult{}, ErrNoPayments
	}
	total := decimal.Zero
	for _, p := range input.Payments {
		amount := p.Principal.Add(p.Interest)
		if !amount.IsPositive() {
			return PaymentResult{}, ErrPaymentNotPositive
		}
		if p.Principal.IsNegative() || p.Interest.IsNegative() {
			return PaymentResult{}, ErrPaymentNotPositive
		}
		total = total.Add(amount)
	}
	if err := input.Journal.Validate(); err != nil {
		return PaymentResult{}, err
	}
	var result PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		items, err := tx.GetItems(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		byID := make(map[int64]InvoiceItem, len(items))
		for _, it := range items {
			byID[it.ID] = it
		}
		for _, p := range input.Payments {
			if _, ok := byID[p.ItemID]; !ok {
				return fmt.Errorf("%w: item %d", ErrItemNotFound, p.ItemID)
			}
		}

		entry, err := s.poster.PostEntryInTx(ctx, tx.Ledger(), input.Journal)
		if err != nil {
			return err
		}
		result.LedgerID = entry.ID

		for _, p := range input.Payments {
			inserted, err := tx.InsertItemPayment(ctx, ItemPayment{
				InvoiceItemID: p.ItemID,
				Principal:     p.Principal,
				Interest:      p.Interest,
				LedgerID:      entry.ID,
				PaymentDate:   input.PaymentDate,
			})
			if err != nil {
				return err
			}
			result.Payments = append(result.Payments, inserted)

			item := byID[p.ItemID]
			if item.IsTotallyPaid {
				continue
			}
			paid, err := tx.SumPrincipalPaid(ctx, p.ItemID)
			if err != nil {
				return err
			}
			if SettlesItem(item, paid) {
				if err := tx.SetItemTotallyPaid(ctx, p.ItemID); err != nil {
					return err
				}
				result.SettledItem = append(result.SettledItem, p.ItemID)
			}
		}

		applied := ClampDecrement(invoice.OutstandingAmount, total)
		invoice.OutstandingAmount = invoice.OutstandingAmount.Sub(applied)
		if err := tx.UpdateOutstanding(ctx, invoice.ID, invoice.OutstandingAmount); err != nil {
			return err
		}
		result.Invoice = invoice
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	s.recordAudit(ctx, input.Journal.PostedBy, result)
	return result, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, result PaymentResult) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "invoice.pay",
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", result.Invoice.ID),
		Meta: map[string]any{
			"ledger_id":   result.LedgerID,
			"outstanding": result.Invoice.OutstandingAmount.String(),
			"settled":     result.SettledItem,
		},
		At: s.now(),
	})
}

// GetInvoice loads one invoice with items.
func (s *Service) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, []InvoiceItem, error) {
	return s.repo.GetInvoice(ctx, invoiceID)
}

// ListPayments returns payments against one invoice item.
func (s *Service) ListPayments(ctx context.Context, itemID int64) ([]ItemPayment, error) {
	return s.repo.ListPayments(ctx, itemID)
}

// Aging builds a receivables aging report as of a day.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	open, err := s.repo.ListOutstanding(ctx, asOf)
	if err != nil {
		return AgingReport{}, err
	}
	return BuildAgingReport(asOf, open), nil
}
