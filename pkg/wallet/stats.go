package wallet

import (
	"context"
	"fmt"
	"time"
)

const trailingMonths = 6

// MonthStats holds one calendar month's per-direction totals.
type MonthStats struct {
	Year          int
	Month         time.Month
	TotalInCents  AmountCents
	TotalOutCents AmountCents
}

// OverallStats holds all-time totals, optionally scoped to one wallet.
type OverallStats struct {
	TotalInCents     AmountCents
	TotalOutCents    AmountCents
	TransactionCount int64
}

// MonthlyStats sums amounts per direction for the trailing six calendar
// months anchored to the service clock's current month, oldest first. A
// month without transactions yields zero totals. A nil scope covers all
// wallets.
func (service *Service) MonthlyStats(ctx context.Context, scope *WalletID) ([]MonthStats, error) {
	walletID := ""
	if scope != nil {
		walletID = scope.String()
	}
	now := time.Unix(service.nowFn(), 0).UTC()
	results := make([]MonthStats, 0, trailingMonths)
	for offset := trailingMonths - 1; offset >= 0; offset-- {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -offset, 0)
		nextMonthStart := monthStart.AddDate(0, 1, 0)
		sums, err := service.store.SumAmountsInRange(ctx, walletID, monthStart.Unix(), nextMonthStart.Unix())
		if err != nil {
			return nil, err
		}
		results = append(results, MonthStats{
			Year:          monthStart.Year(),
			Month:         monthStart.Month(),
			TotalInCents:  sums.TotalInCents,
			TotalOutCents: sums.TotalOutCents,
		})
	}
	return results, nil
}

// OverallStats sums all-time amounts and counts transactions. A nil scope
// covers all wallets.
func (service *Service) OverallStats(ctx context.Context, scope *WalletID) (OverallStats, error) {
	walletID := ""
	if scope != nil {
		walletID = scope.String()
	}
	sums, err := service.store.SumAmounts(ctx, walletID)
	if err != nil {
		return OverallStats{}, err
	}
	count, err := service.store.CountTransactions(ctx, walletID)
	if err != nil {
		return OverallStats{}, err
	}
	return OverallStats{
		TotalInCents:     sums.TotalInCents,
		TotalOutCents:    sums.TotalOutCents,
		TransactionCount: count,
	}, nil
}

// RecentTransactions lists the most recent transactions system-wide,
// newest first.
func (service *Service) RecentTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: must be greater than zero", ErrInvalidLimit)
	}
	return service.store.ListRecentTransactions(ctx, limit)
}
