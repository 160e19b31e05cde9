package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coopledger/coopledger/internal/shared"
)

// Member is a cooperative member. Every member owns exactly one fund row,
// provisioned at registration.
type Member struct {
	ID        int64
	Code      string
	FullName  string
	IsActive  bool
	FundID    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrMemberNotFound indicates the member row is missing.
	ErrMemberNotFound = errors.New("members: member not found")
	// ErrCodeTaken indicates a duplicate member code.
	ErrCodeTaken = errors.New("members: code already taken")
)

// Repository persists members.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the member and provisions the zero-balance fund row in one
// transaction.
func (r *Repository) Create(ctx context.Context, code, fullName string) (Member, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Member{}, err
	}
	defer tx.Rollback(ctx)

	var m Member
	m.Code = code
	m.FullName = fullName
	m.IsActive = true
	err = tx.QueryRow(ctx, `INSERT INTO members (code, full_name, is_active) VALUES ($1,$2,TRUE)
RETURNING id, created_at, updated_at`, code, fullName).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isDuplicateCode(err) {
			return Member{}, ErrCodeTaken
		}
		return Member{}, err
	}
	err = tx.QueryRow(ctx, `INSERT INTO member_funds (member_id, savings_balance, share_capital_balance) VALUES ($1,0,0)
RETURNING id`, m.ID).Scan(&m.FundID)
	if err != nil {
		return Member{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Member{}, err
	}
	return m, nil
}

// isDuplicateCode reports whether err is the unique violation on the member
// code column.
func isDuplicateCode(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Get loads one member.
func (r *Repository) Get(ctx context.Context, memberID int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `SELECT m.id, m.code, m.full_name, m.is_active, f.id, m.created_at, m.updated_at
FROM members m JOIN member_funds f ON f.member_id = m.id WHERE m.id=$1`, memberID).
		Scan(&m.ID, &m.Code, &m.FullName, &m.IsActive, &m.FundID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, err
	}
	return m, nil
}

// List returns members, active first, alphabetical within.
func (r *Repository) List(ctx context.Context, limit int) ([]Member, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.code, m.full_name, m.is_active, f.id, m.created_at, m.updated_at
FROM members m JOIN member_funds f ON f.member_id = m.id
ORDER BY m.is_active DESC, m.full_name LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Code, &m.FullName, &m.IsActive, &m.FundID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetActive toggles membership status.
func (r *Repository) SetActive(ctx context.Context, memberID int64, active bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE members SET is_active=$2, updated_at=NOW() WHERE id=$1`, memberID, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RepositoryPort abstracts the registry store.
type RepositoryPort interface {
	Create(ctx context.Context, code, fullName string) (Member, error)
	Get(ctx context.Context, memberID int64) (Member, error)
	List(ctx context.Context, limit int) ([]Member, error)
	SetActive(ctx context.Context, memberID int64, active bool) error
}

// AuditPort records registry events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps the registry with auditing.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the members service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Create registers a member and provisions their fund.
func (s *Service) Create(ctx context.Context, code, fullName string) (Member, error) {
	code = strings.TrimSpace(code)
	fullName = strings.TrimSpace(fullName)
	if code == "" || fullName == "" {
		return Member{}, errors.New("members: code and full name required")
	}
	m, err := s.repo.Create(ctx, code, fullName)
	if err != nil {
		return Member{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "member.create",
			Entity:   "member",
			EntityID: fmt.Sprintf("%d", m.ID),
			Meta:     map[string]any{"code": m.Code, "fund_id": m.FundID},
			At:       s.now(),
		})
	}
	return m, nil
}

// Get loads one member.
func (s *Service) Get(ctx context.Context, memberID int64) (Member, error) {
	return s.repo.Get(ctx, memberID)
}

// List returns members.
func (s *Service) List(ctx context.Context, limit int) ([]Member, error) {
	return s.repo.List(ctx, limit)
}

// SetActive toggles membership status.
func (s *Service) SetActive(ctx context.Context, memberID int64, active bool) error {
	return s.repo.SetActive(ctx, memberID, active)
}
