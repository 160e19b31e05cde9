package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coopledger/coopledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, entryID int64) (JournalEntry, []JournalItem, error)
	ListEntries(ctx context.Context, limit int) ([]JournalEntry, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates derived report caches after a posting.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// KeyStore reserves caller-supplied idempotency keys for postings.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates posting and reversing journal entries together with
// running-balance propagation.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cache  CacheBumper
	keys   KeyStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the ledger service. keys may be nil, in which case
// postings rely on source references alone for retry safety.
func NewService(repo RepositoryPort, audit AuditPort, cache CacheBumper, keys KeyStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, keys: keys, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostEntry validates and persists a new journal entry, applying the sign
// rule deltas to every touched running balance in the same transaction.
func (s *Service) PostEntry(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if input.IdempotencyKey != "" && s.keys != nil {
		if err := s.keys.CheckAndInsert(ctx, input.IdempotencyKey, "ledger"); err != nil {
			return JournalEntry{}, err
		}
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := s.postInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		// Release the key so the caller can retry after fixing the input.
		if input.IdempotencyKey != "" && s.keys != nil {
			if derr := s.keys.Delete(ctx, input.IdempotencyKey); derr != nil && s.logger != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		return JournalEntry{}, err
	}
	s.afterPosting(ctx, input.PostedBy, "journal.post", entry)
	return entry, nil
}

// ReverseEntry posts a mirrored entry undoing the balance deltas of the
// original. Entries are never hard-deleted; reversal is the delete path.
func (s *Service) ReverseEntry(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, items, err := tx.GetEntryWithItems(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.ReversedBy != nil {
			return ErrAlreadyReversed
		}
		posting := PostingInput{
			EntryDate:     original.EntryDate,
			JournalType:   original.JournalType,
			ReferenceName: fmt.Sprintf("Reversal of JE %d", original.ID),
			ReferenceType: ReferenceReversal,
			MemberID:      original.MemberID,
			Notes:         defaultReversalNotes(input.Notes, original.ID),
			SourceRef:     uuid.New(),
			PostedBy:      input.ActorID,
			Items:         mirrorItems(items),
		}
		inserted, err := s.postInTx(ctx, tx, posting)
		if err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, inserted.ID); err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.afterPosting(ctx, input.ActorID, "journal.reverse", reversal)
	return reversal, nil
}

// PostEntryInTx validates and posts an entry inside a transaction owned by
// the caller, so a sub-ledger write and its journal entry commit or abort
// together. Audit and cache invalidation stay with the calling module.
func (s *Service) PostEntryInTx(ctx context.Context, tx TxRepository, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	return s.postInTx(ctx, tx, input)
}

// postInTx inserts the entry, its items, and the balance deltas. Callers
// supply the surrounding transaction so sub-ledger writes stay atomic with
// the journal insert.
func (s *Service) postInTx(ctx context.Context, tx TxRepository, input PostingInput) (JournalEntry, error) {
	ids := make([]int64, 0, len(input.Items))
	for _, item := range input.Items {
		ids = append(ids, item.AccountID)
	}
	rootTypes, err := tx.GetAccountRootTypes(ctx, ids)
	if err != nil {
		return JournalEntry{}, err
	}
	for _, item := range input.Items {
		if _, ok := rootTypes[item.AccountID]; !ok {
			return JournalEntry{}, ErrAccountNotFound
		}
	}
	inserted, err := tx.InsertJournalEntry(ctx, input)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertJournalItems(ctx, inserted.ID, input.Items); err != nil {
		return JournalEntry{}, err
	}
	for _, item := range input.Items {
		if Anomalous(item.Debit, item.Credit) && s.logger != nil {
			s.logger.Warn("journal item carries both debit and credit",
				slog.Int64("entry_id", inserted.ID),
				slog.Int64("account_id", item.AccountID))
		}
		delta := SignedDelta(rootTypes[item.AccountID], item.Debit, item.Credit)
		if delta.IsZero() {
			continue
		}
		if err := tx.ApplyAccountDelta(ctx, item.AccountID, delta); err != nil {
			return JournalEntry{}, err
		}
	}
	if input.SourceRef != uuid.Nil {
		if err := tx.LinkSource(ctx, string(input.ReferenceType), input.SourceRef, inserted.ID); err != nil {
			return JournalEntry{}, err
		}
	}
	inserted.Items = toJournalItems(inserted.ID, input.Items, s.now())
	return inserted, nil
}

func (s *Service) afterPosting(ctx context.Context, actorID int64, action string, entry JournalEntry) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"journal_type":   entry.JournalType,
				"reference_type": entry.ReferenceType,
			},
			At: s.now(),
		})
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
			s.logger.Warn("report cache bump", slog.Any("error", err))
		}
	}
}

// GetEntry returns one entry with its items.
func (s *Service) GetEntry(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, items, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Items = items
	return entry, nil
}

// ListEntries returns recent journal entries.
func (s *Service) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	return s.repo.ListEntries(ctx, limit)
}

// ListAccounts retrieves all chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

func mirrorItems(items []JournalItem) []PostingItemInput {
	out := make([]PostingItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, PostingItemInput{
			AccountID: item.AccountID,
			Debit:     item.Credit,
			Credit:    item.Debit,
		})
	}
	return out
}

func toJournalItems(entryID int64, items []PostingItemInput, ts time.Time) []JournalItem {
	out := make([]JournalItem, 0, len(items))
	for _, item := range items {
		out = append(out, JournalItem{
			EntryID:   entryID,
			AccountID: item.AccountID,
			Debit:     item.Debit,
			Credit:    item.Credit,
			CreatedAt: ts,
		})
	}
	return out
}

func defaultReversalNotes(notes string, entryID int64) string {
	if notes != "" {
		return notes
	}
	return fmt.Sprintf("Reverses journal entry %d", entryID)
}
