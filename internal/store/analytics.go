package store

import (
	"context"
	"sort"
	"time"

	"pharmapos/backend/internal/domain"
)

const (
	DefaultBestSellerLimit = 5
	DefaultTrendDays       = 30
	// MaxWindowDays bounds trend and sales-history windows.
	MaxWindowDays          = 3650
)

// GetKpis sums revenue and profit since local midnight and since the first
// of the local month.
func (s *Store) GetKpis(ctx context.Context) (domain.Kpis, error) {
	st, err := s.snapshot(ctx)
	if err != nil {
		return domain.Kpis{}, err
	}

	now := s.now().In(s.loc)
	today := startOfDay(now).UnixMilli()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc).UnixMilli()

	var kpis domain.Kpis
	for _, sale := range st.sales {
		if sale.CreatedAt >= month {
			kpis.MonthRevenue += sale.Total
			kpis.MonthProfit += sale.Profit
		}
		if sale.CreatedAt >= today {
			kpis.TodayRevenue += sale.Total
			kpis.TodayProfit += sale.Profit
		}
	}
	return kpis, nil
}

// GetBestSellers ranks medicines by units sold. Equal quantities keep the
// order in which the medicines were first sold.
func (s *Store) GetBestSellers(ctx context.Context, limit int) ([]domain.BestSeller, error) {
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultBestSellerLimit
	}

	ranked := make([]domain.BestSeller, 0)
	seen := map[string]int{}
	for i := len(st.sales) - 1; i >= 0; i-- {
		for _, item := range st.sales[i].Items {
			pos, ok := seen[item.MedicineID]
			if !ok {
				seen[item.MedicineID] = len(ranked)
				ranked = append(ranked, domain.BestSeller{MedicineID: item.MedicineID, Name: item.Name, Qty: item.Qty})
				continue
			}
			ranked[pos].Qty += item.Qty
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Qty > ranked[j].Qty
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// GetSalesTrend returns one total per local calendar day, oldest first,
// ending with today. Windows longer than MaxWindowDays are truncated.
func (s *Store) GetSalesTrend(ctx context.Context, days int) ([]domain.TrendPoint, error) {
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultTrendDays
	}
	days = min(days, MaxWindowDays)

	today := startOfDay(s.now().In(s.loc))
	first := today.AddDate(0, 0, -(days - 1))
	points := make([]domain.TrendPoint, days)
	bounds := make([]int64, days+1)
	for i := 0; i < days; i++ {
		day := first.AddDate(0, 0, i)
		points[i].Date = day.Format(s.dateLayout)
		bounds[i] = day.UnixMilli()
	}
	bounds[days] = today.AddDate(0, 0, 1).UnixMilli()

	for _, sale := range st.sales {
		if sale.CreatedAt < bounds[0] || sale.CreatedAt >= bounds[days] {
			continue
		}
		// first bound strictly after the sale, minus one
		i := sort.Search(days+1, func(i int) bool { return bounds[i] > sale.CreatedAt }) - 1
		points[i].Total += sale.Total
	}
	return points, nil
}

func (s *Store) GetLowStock(ctx context.Context) ([]domain.Medicine, error) {
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Medicine, 0)
	for _, med := range st.medicines {
		if med.StockQty <= med.ReorderThreshold {
			out = append(out, med)
		}
	}
	return out, nil
}

// GetSales lists sales newest first. A positive sinceDays keeps only sales
// from the trailing sinceDays*24h window.
func (s *Store) GetSales(ctx context.Context, sinceDays int) ([]domain.Sale, error) {
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	sinceDays = min(sinceDays, MaxWindowDays)
	var cutoff int64
	if sinceDays > 0 {
		cutoff = s.now().Add(-time.Duration(sinceDays) * 24 * time.Hour).UnixMilli()
	}
	out := make([]domain.Sale, 0, len(st.sales))
	for _, sale := range st.sales {
		if sinceDays > 0 && sale.CreatedAt < cutoff {
			continue
		}
		out = append(out, cloneSale(sale))
	}
	return out, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (domain.Sale, bool, error) {
	st, err := s.snapshot(ctx)
	if err != nil {
		return domain.Sale{}, false, err
	}
	for _, sale := range st.sales {
		if sale.ID == id {
			return cloneSale(sale), true, nil
		}
	}
	return domain.Sale{}, false, nil
}
