package reports

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ReaderPort abstracts the report queries.
type ReaderPort interface {
	AccountActivity(ctx context.Context, from, to time.Time) ([]AccountActivity, error)
	BalanceRows(ctx context.Context, asOf time.Time) ([]BalanceRow, error)
	FlowRows(ctx context.Context, from, to time.Time) ([]FlowRow, error)
}

// Service builds read-only financial reports. Builds are cached under a
// versioned key and concurrent identical builds collapse via singleflight.
type Service struct {
	reader ReaderPort
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group
}

// NewService constructs the reports service.
func NewService(reader ReaderPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{reader: reader, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

const dateKey = "2006-01-02"

// GeneralLedger builds the per-account activity report. A zero window
// defaults to the trailing 30 days.
func (s *Service) GeneralLedger(ctx context.Context, from, to time.Time) (GeneralLedger, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	var report GeneralLedger
	err := s.fetch(ctx, &report,
		[]string{"reports", "gl", from.Format(dateKey), to.Format(dateKey)},
		func(ctx context.Context) (any, error) {
			rows, err := s.reader.AccountActivity(ctx, from, to)
			if err != nil {
				return nil, err
			}
			return BuildGeneralLedger(from, to, rows), nil
		})
	return report, err
}

// BalanceSheet reconstructs balances as of a date.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	var report BalanceSheet
	err := s.fetch(ctx, &report,
		[]string{"reports", "bs", asOf.Format(dateKey)},
		func(ctx context.Context) (any, error) {
			rows, err := s.reader.BalanceRows(ctx, asOf)
			if err != nil {
				return nil, err
			}
			return BuildBalanceSheet(asOf, rows), nil
		})
	return report, err
}

// IncomeStatement sums Revenue/Expense activity within the range.
func (s *Service) IncomeStatement(ctx context.Context, from, to time.Time) (IncomeStatement, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	var report IncomeStatement
	err := s.fetch(ctx, &report,
		[]string{"reports", "pl", from.Format(dateKey), to.Format(dateKey)},
		func(ctx context.Context) (any, error) {
			rows, err := s.reader.FlowRows(ctx, from, to)
			if err != nil {
				return nil, err
			}
			return BuildIncomeStatement(from, to, rows), nil
		})
	return report, err
}

// Summary bundles the three reports for a dashboard view. The reads are
// independent and fan out concurrently; no wrapping transaction means a
// posting racing the build can tear the snapshot, which is accepted for
// report reads.
type Summary struct {
	GeneralLedger   GeneralLedger
	BalanceSheet    BalanceSheet
	IncomeStatement IncomeStatement
}

// BuildSummary fetches all three reports concurrently.
func (s *Service) BuildSummary(ctx context.Context, asOf time.Time) (Summary, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	var summary Summary
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gl, err := s.GeneralLedger(ctx, asOf.AddDate(0, 0, -30), asOf)
		summary.GeneralLedger = gl
		return err
	})
	g.Go(func() error {
		bs, err := s.BalanceSheet(ctx, asOf)
		summary.BalanceSheet = bs
		return err
	})
	g.Go(func() error {
		is, err := s.IncomeStatement(ctx, asOf.AddDate(0, -1, 0), asOf)
		summary.IncomeStatement = is
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// fetch runs the cached, singleflight-collapsed build for one report key.
func (s *Service) fetch(ctx context.Context, dest any, keyParts []string, loader func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, keyParts...)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("report cache key", slog.Any("error", err))
		}
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return reencode(value, dest)
	}
	result, err, _ := s.group.Do(key, func() (any, error) {
		err := s.cache.FetchJSON(ctx, key, dest, loader)
		return dest, err
	})
	if err != nil {
		return err
	}
	if result != dest {
		return reencode(result, dest)
	}
	return nil
}

// reencode copies a value into dest through JSON, used when a singleflight
// follower shares the leader's result.
func reencode(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
