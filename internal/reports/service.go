package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"LIBRIS-backend/internal/catalog/titles"
	"LIBRIS-backend/internal/circulation/loans"
	"LIBRIS-backend/internal/platform/apierr"
)

// LoanSource is implemented by *loans.Service.
type LoanSource interface {
	ListOverdue(ctx context.Context, now time.Time) ([]*loans.Loan, error)
	Now() time.Time
	FinePerDay() decimal.Decimal
}

type TitleSource interface {
	Get(ctx context.Context, id int64) (*titles.Title, error)
}

type Service struct {
	loans  LoanSource
	titles TitleSource
	logger *slog.Logger
}

func NewService(l LoanSource, t TitleSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{loans: l, titles: t, logger: logger}
}

// Overdue builds the overdue list as of the loan service's clock.
func (s *Service) Overdue(ctx context.Context) ([]OverdueRow, error) {
	now := s.loans.Now()
	list, err := s.loans.ListOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	// 同じ書誌を何度も引かない
	cache := make(map[int64]*titles.Title)
	rows := make([]OverdueRow, 0, len(list))
	for _, l := range list {
		t, ok := cache[l.TitleID]
		if !ok {
			t, err = s.titles.Get(ctx, l.TitleID)
			if err != nil && !apierr.HasCode(err, apierr.CodeNotFound) {
				return nil, err
			}
			cache[l.TitleID] = t
		}
		row := OverdueRow{
			LoanULID:    l.ULID,
			UserID:      l.UserID,
			TitleID:     l.TitleID,
			BorrowedAt:  l.BorrowedAt,
			DueAt:       l.DueAt,
			DaysOverdue: loans.DaysOverdue(l, now),
			AccruedFine: loans.FineAmount(l, now, s.loans.FinePerDay()),
		}
		if t != nil {
			row.Title = t.Title
			row.ISBN = t.ISBN
		}
		rows = append(rows, row)
	}
	s.logger.DebugContext(ctx, "overdue report built", "rows", len(rows))
	return rows, nil
}
