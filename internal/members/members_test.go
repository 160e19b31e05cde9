package members

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type memoryMemberRepo struct {
	members map[int64]Member
	codes   map[string]bool
	nextID  int64
}

func newMemoryMemberRepo() *memoryMemberRepo {
	return &memoryMemberRepo{members: map[int64]Member{}, codes: map[string]bool{}, nextID: 1}
}

func (r *memoryMemberRepo) Create(ctx context.Context, code, fullName string) (Member, error) {
	if r.codes[code] {
		return Member{}, ErrCodeTaken
	}
	m := Member{ID: r.nextID, Code: code, FullName: fullName, IsActive: true, FundID: r.nextID + 100}
	r.nextID++
	r.members[m.ID] = m
	r.codes[code] = true
	return m, nil
}

func (r *memoryMemberRepo) Get(ctx context.Context, memberID int64) (Member, error) {
	m, ok := r.members[memberID]
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return m, nil
}

func (r *memoryMemberRepo) List(ctx context.Context, limit int) ([]Member, error) {
	var out []Member
	for _, m := range r.members {
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryMemberRepo) SetActive(ctx context.Context, memberID int64, active bool) error {
	m, ok := r.members[memberID]
	if !ok {
		return ErrMemberNotFound
	}
	m.IsActive = active
	r.members[memberID] = m
	return nil
}

func TestCreateMemberProvisionsFund(t *testing.T) {
	svc := NewService(newMemoryMemberRepo(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	m, err := svc.Create(context.Background(), "M-001", "Ana Reyes")
	require.NoError(t, err)
	require.NotZero(t, m.FundID, "registration must provision a fund")
	require.True(t, m.IsActive)
}

func TestCreateMemberRejectsBlankFields(t *testing.T) {
	svc := NewService(newMemoryMemberRepo(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.Create(context.Background(), "  ", "Ana Reyes")
	require.Error(t, err)
	_, err = svc.Create(context.Background(), "M-001", "")
	require.Error(t, err)
}

func TestCreateMemberDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryMemberRepo(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.Create(context.Background(), "M-001", "Ana Reyes")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "M-001", "Ben Cruz")
	require.ErrorIs(t, err, ErrCodeTaken)
}

func TestIsDuplicateCode(t *testing.T) {
	wrapped := fmt.Errorf("insert member: %w", &pgconn.PgError{Code: "23505", ConstraintName: "members_code_key"})
	require.True(t, isDuplicateCode(wrapped))

	// A message that merely mentions the constraint is not a unique violation.
	require.False(t, isDuplicateCode(errors.New(`duplicate key value violates unique constraint "members_code_key"`)))
	require.False(t, isDuplicateCode(&pgconn.PgError{Code: "23503"}))
}

func TestSetActiveUnknownMember(t *testing.T) {
	svc := NewService(newMemoryMemberRepo(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorIs(t, svc.SetActive(context.Background(), 9, false), ErrMemberNotFound)
}
