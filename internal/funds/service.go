package funds

import (
	"context"
	"errors"
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
	GetFund(ctx context.Context, fundID int64) (MemberFund, error)
	GetFundByMember(ctx context.Context, memberID int64) (MemberFund, error)
	ListTransactions(ctx context.Context, fundID int64, limit int) ([]FundTransaction, error)
}

// LedgerPoster posts journal entries inside a caller-owned transaction.
type LedgerPoster interface {
	PostEntryInTx(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput) (ledger.JournalEntry, error)
}

// AuditPort records fund events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates member fund postings.
type Service struct {
	repo   RepositoryPort
	poster LedgerPoster
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the funds service.
func NewService(repo RepositoryPort, poster LedgerPoster, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, poster: poster, audit: audit, logger: logger, now: time.Now}
}

// PostedInput describes a fund transaction that also posts its own journal
// entry.
type PostedInput struct {
	FundID  int64
	Type    TransactionType
	Amount  decimal.Decimal
	Journal ledger.PostingInput
}

// NoPostingInput describes a fund transaction referencing an existing
// journal entry supplied by the caller.
type NoPostingInput struct {
	FundID   int64
	Type     TransactionType
	Amount   decimal.Decimal
	LedgerID int64
}

// CreateFundTransaction posts a journal entry and records the fund movement
// as one atomic unit: journal header + items, fund transaction row, and the
// member fund balance update commit together or not at all.
func (s *Service) CreateFundTransaction(ctx context.Context, input PostedInput) (FundTransaction, error) {
	if !input.Type.Valid() {
		return FundTransaction{}, fmt.Errorf("funds: unknown transaction type %q", input.Type)
	}
	if err := input.Journal.Validate(); err != nil {
		return FundTransaction{}, err
	}
	var txn FundTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fund, err := tx.GetFundForUpdate(ctx, input.FundID)
		if err != nil {
			return err
		}
		updated, posted, newBal, err := input.Type.Apply(fund, input.Amount)
		if err != nil {
			return err
		}
		entry, err := s.poster.PostEntryInTx(ctx, tx.Ledger(), input.Journal)
		if err != nil {
			return err
		}
		ledgerID := entry.ID
		txn, err = tx.InsertFundTransaction(ctx, FundTransaction{
			FundID:        fund.ID,
			Type:          input.Type,
			Amount:        input.Amount,
			PostedBalance: posted,
			NewBalance:    newBal,
			LedgerID:      &ledgerID,
		})
		if err != nil {
			return err
		}
		return tx.UpdateFundBalances(ctx, updated)
	})
	if err != nil {
		return FundTransaction{}, err
	}
	s.recordAudit(ctx, input.Journal.PostedBy, "fund.post", txn)
	return txn, nil
}

// CreateFundTransactionNoPosting records a fund movement against a journal
// entry that already exists. The fund must exist before any mutation.
func (s *Service) CreateFundTransactionNoPosting(ctx context.Context, input NoPostingInput) (FundTransaction, error) {
	if !input.Type.Valid() {
		return FundTransaction{}, fmt.Errorf("funds: unknown transaction type %q", input.Type)
	}
	if input.LedgerID == 0 {
		return FundTransaction{}, errors.New("funds: ledger entry id required")
	}
	var txn FundTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fund, err := tx.GetFundForUpdate(ctx, input.FundID)
		if err != nil {
			return err
		}
		exists, err := tx.EntryExists(ctx, input.LedgerID)
		if err != nil {
			return err
		}
		if !exists {
			return ledger.ErrEntryNotFound
		}
		updated, posted, newBal, err := input.Type.Apply(fund, input.Amount)
		if err != nil {
			return err
		}
		ledgerID := input.LedgerID
		txn, err = tx.InsertFundTransaction(ctx, FundTransaction{
			FundID:        fund.ID,
			Type:          input.Type,
			Amount:        input.Amount,
			PostedBalance: posted,
			NewBalance:    newBal,
			LedgerID:      &ledgerID,
		})
		if err != nil {
			return err
		}
		return tx.UpdateFundBalances(ctx, updated)
	})
	if err != nil {
		return FundTransaction{}, err
	}
	s.recordAudit(ctx, 0, "fund.post_no_ledger", txn)
	return txn, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, txn FundTransaction) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fund_transaction",
		EntityID: fmt.Sprintf("%d", txn.ID),
		Meta: map[string]any{
			"fund_id": txn.FundID,
			"type":    txn.Type,
			"amount":  txn.Amount.String(),
		},
		At: s.now(),
	})
}

// GetFund returns a member fund by id.
func (s *Service) GetFund(ctx context.Context, fundID int64) (MemberFund, error) {
	return s.repo.GetFund(ctx, fundID)
}

// GetFundByMember returns a member fund by member id.
func (s *Service) GetFundByMember(ctx context.Context, memberID int64) (MemberFund, error) {
	return s.repo.GetFundByMember(ctx, memberID)
}

// ListTransactions returns recent transactions for a fund.
func (s *Service) ListTransactions(ctx context.Context, fundID int64, limit int) ([]FundTransaction, error) {
	return s.repo.ListTransactions(ctx, fundID, limit)
}
