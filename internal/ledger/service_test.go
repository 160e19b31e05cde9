package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/shared"
)

type memAccount struct {
	rootType RootType
	opening  decimal.Decimal
	balance  decimal.Decimal
}

type memoryLedgerRepo struct {
	accounts map[int64]*memAccount
	entries  map[int64]*JournalEntry
	items    map[int64][]JournalItem
	links    map[string]int64
	nextID   int64

	failDeltaFor int64 // account id whose delta update fails, 0 = never
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		accounts: make(map[int64]*memAccount),
		entries:  make(map[int64]*JournalEntry),
		items:    make(map[int64][]JournalItem),
		links:    make(map[string]int64),
	}
}

func (r *memoryLedgerRepo) addAccount(id int64, rootType RootType, opening string) {
	bal := decimal.RequireFromString(opening)
	r.accounts[id] = &memAccount{rootType: rootType, opening: bal, balance: bal}
}

func (r *memoryLedgerRepo) snapshot() *memoryLedgerRepo {
	cp := newMemoryLedgerRepo()
	cp.nextID = r.nextID
	cp.failDeltaFor = r.failDeltaFor
	for id, a := range r.accounts {
		dup := *a
		cp.accounts[id] = &dup
	}
	for id, e := range r.entries {
		dup := *e
		cp.entries[id] = &dup
	}
	for id, its := range r.items {
		cp.items[id] = append([]JournalItem(nil), its...)
	}
	for k, v := range r.links {
		cp.links[k] = v
	}
	return cp
}

func (r *memoryLedgerRepo) restore(from *memoryLedgerRepo) {
	r.accounts = from.accounts
	r.entries = from.entries
	r.items = from.items
	r.links = from.links
	r.nextID = from.nextID
}

// WithTx mimics commit-or-fully-abort by running fn against a snapshot.
func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := r.snapshot()
	if err := fn(ctx, staged); err != nil {
		return err
	}
	r.restore(staged)
	return nil
}

func (r *memoryLedgerRepo) GetAccountRootTypes(ctx context.Context, ids []int64) (map[int64]RootType, error) {
	out := make(map[int64]RootType)
	for _, id := range ids {
		if a, ok := r.accounts[id]; ok {
			out[id] = a.rootType
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	r.nextID++
	entry := JournalEntry{
		ID:            r.nextID,
		EntryDate:     in.EntryDate,
		JournalType:   in.JournalType,
		ReferenceName: in.ReferenceName,
		ReferenceType: in.ReferenceType,
		MemberID:      in.MemberID,
		Notes:         in.Notes,
		SourceRef:     in.SourceRef,
		PostedBy:      in.PostedBy,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	r.entries[entry.ID] = &entry
	return entry, nil
}

func (r *memoryLedgerRepo) InsertJournalItems(ctx context.Context, entryID int64, items []PostingItemInput) error {
	for _, item := range items {
		r.items[entryID] = append(r.items[entryID], JournalItem{
			EntryID:   entryID,
			AccountID: item.AccountID,
			Debit:     item.Debit,
			Credit:    item.Credit,
		})
	}
	return nil
}

func (r *memoryLedgerRepo) ApplyAccountDelta(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	if r.failDeltaFor == accountID {
		return errors.New("simulated delta failure")
	}
	a, ok := r.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	a.balance = a.balance.Add(delta)
	return nil
}

func (r *memoryLedgerRepo) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	key := module + ":" + ref.String()
	if _, ok := r.links[key]; ok {
		return ErrSourceAlreadyLinked
	}
	r.links[key] = entryID
	return nil
}

func (r *memoryLedgerRepo) GetEntryWithItems(ctx context.Context, entryID int64) (JournalEntry, []JournalItem, error) {
	entry, ok := r.entries[entryID]
	if !ok {
		return JournalEntry{}, nil, ErrEntryNotFound
	}
	return *entry, r.items[entryID], nil
}

func (r *memoryLedgerRepo) MarkReversed(ctx context.Context, entryID, reversalID int64) error {
	entry, ok := r.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	if entry.ReversedBy != nil {
		return ErrAlreadyReversed
	}
	entry.ReversedBy = &reversalID
	return nil
}

func (r *memoryLedgerRepo) GetEntry(ctx context.Context, entryID int64) (JournalEntry, []JournalItem, error) {
	return r.GetEntryWithItems(ctx, entryID)
}

func (r *memoryLedgerRepo) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out, nil
}

func (r *memoryLedgerRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	return nil, nil
}

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func depositInput(amount string) PostingInput {
	return PostingInput{
		EntryDate:     mustDate("2026-02-10"),
		JournalType:   JournalTypeCashReceipts,
		ReferenceName: "OR-2201",
		ReferenceType: ReferenceSavingsDeposit,
		PostedBy:      7,
		Items: []PostingItemInput{
			{AccountID: 1, Debit: d(amount)},
			{AccountID: 2, Credit: d(amount)},
		},
	}
}

func TestPostEntryPropagatesBalances(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addAccount(1, RootTypeAssets, "1000") // Cash on Hand
	repo.addAccount(2, RootTypeLiability, "0") // Savings Deposits
	svc := NewService(repo, nil, nil, nil, nil)

	entry, err := svc.PostEntry(context.Background(), depositInput("500"))
	require.NoError(t, err)
	require.NotZero(t, entry.ID)
	require.Len(t, entry.Items, 2)

	require.True(t, repo.accounts[1].balance.Equal(d("1500")), "cash balance %s", repo.accounts[1].balance)
	require.True(t, repo.accounts[2].balance.Equal(d("500")), "savings deposits balance %s", repo.accounts[2].balance)
}

func TestPostEntryRejectsUnbalancedBeforeWrite(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addAccount(1, RootTypeAssets, "1000")
	repo.addAccount(2, RootTypeLiability, "0")
	svc := NewService(repo, nil, nil, nil, nil)

	in := depositInput("500")
	in.Items[1].Credit = d("450")
	_, err := svc.PostEntry(context.Background(), in)
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.entries)
	require.True(t, repo.accounts[1].balance.Equal(d("1000")))
}

func TestPostEntryUnknownAccountFailsBeforeWrite(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addAccount(1, RootTypeAssets, "1000")
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.PostEntry(context.Background(), depositInput("500"))
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.Empty(t, repo.entries)
}

func TestPostEntryAtomicOnDeltaFailure(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addAccount(1, RootTypeAssets, "1000")
	repo.addAccount(2, RootTypeLiability, "0")
	repo.failDeltaFor = 2
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.PostEntry(context.Background(), depositInput("500"))
	require.Error(t, err)
	require.Empty(t, repo.entries, "journal entry must not survive a failed balance update")
	require.True(t, repo.accounts[1].balance.Equal(d("1000")), "partial delta must roll back")
}

func TestPostEntrySourceRefIdempotency(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addAccount(1, RootTypeAssets, "1000")
	repo.addAccount(2, RootTypeLiability, "0")
	svc := NewService(repo, nil, nil, nil, nil)

	in := depositInput("500")
	in.SourceRef = uuid.New()
	_, err := svc.PostEntry(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.PostEntry(context.Background(), in)
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)
	require.Len(t, repo.entries, 1)
	require.True(t, repo.accounts[1].balance.Equal(d("1500")), "retry must not double-apply")
}

type memoryKeyStore struct {
	keys map[string]string
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{keys: map[string]string{}}
}

func (k *memoryKeyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := k.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	k.keys[key] = module
	return nil
}

func (k *memoryKeyStore) Delete(ctx context.Context, key string) error {
	delete(k.keys, key)
	return nil
}

func TestPostEntryIdempotencyKeyRejectsReplay(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addAccount(1, RootTypeAssets, "1000")
	repo.addAccount(2, RootTypeLiability, "0")
	keys := newMemoryKeyStore()
	svc := NewService(repo, nil, nil, keys, nil)

	in := depositInput("500")
	in.IdempotencyKey = "or-2201-attempt"
	_, err := svc.PostEntry(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.PostEntry(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.entries, 1)
	require.True(t, repo.accounts[1].balance.Equal(d("1500")), "replay must not double-apply")
}

func TestPostEntryIdempotencyKeyReleasedOnFailure(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addAccount(1, RootTypeAssets, "1000")
	repo.addAccount(2, RootTypeLiability, "0")
	repo.failDeltaFor = 2
	keys := newMemoryKeyStore()
	svc := NewService(repo, nil, nil, keys, nil)

	in := depositInput("500")
	in.IdempotencyKey = "or-2201-attempt"
	_, err := svc.PostEntry(context.Background(), in)
	require.Error(t, err)
	require.Empty(t, keys.keys, "failed posting must release its key")

	repo.failDeltaFor = 0
	_, err = svc.PostEntry(context.Background(), in)
	require.NoError(t, err, "retry after a failure must go through")
	require.True(t, repo.accounts[1].balance.Equal(d("1500")))
}

func TestReverseEntryRestoresBalances(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addAccount(1, RootTypeAssets, "1000")
	repo.addAccount(2, RootTypeLiability, "0")
	svc := NewService(repo, nil, nil, nil, nil)

	entry, err := svc.PostEntry(context.Background(), depositInput("500"))
	require.NoError(t, err)

	reversal, err := svc.ReverseEntry(context.Background(), ReverseInput{EntryID: entry.ID, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, ReferenceReversal, reversal.ReferenceType)

	require.True(t, repo.accounts[1].balance.Equal(d("1000")))
	require.True(t, repo.accounts[2].balance.Equal(d("0")))
	require.NotNil(t, repo.entries[entry.ID].ReversedBy)

	_, err = svc.ReverseEntry(context.Background(), ReverseInput{EntryID: entry.ID, ActorID: 7})
	require.ErrorIs(t, err, ErrAlreadyReversed)
}
