// Package analytics computes the dashboard aggregates over sales and stock.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"spis/m/domain"
	"spis/m/internal/database"
)

const (
	expiringSoonDays    = 14
	salesHistoryDays    = 30
	minAvgDailySales    = 0.1
	defaultTrendDays    = 7
	maxTrendDays        = 90
	defaultTopLimit     = 5
	maxTopLimit         = 50
	defaultRiskWindow   = 90
	maxRiskWindow       = 365
	highRiskThreshold   = 70
	mediumRiskThreshold = 40
)

type Service struct {
	db  *database.DB
	now func() time.Time
}

func NewService(db *database.DB) *Service {
	return &Service{db: db, now: database.Now}
}

type DailySales struct {
	Date       string          `json:"date"`
	Label      string          `json:"label"`
	TotalSales int64           `json:"total_sales"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type TopMedicine struct {
	MedicineID int64           `db:"medicine_id" json:"medicine_id"`
	Name       string          `db:"name" json:"name"`
	TotalSold  int64           `db:"total_sold" json:"total_sold"`
	Revenue    decimal.Decimal `db:"revenue" json:"revenue"`
}

type CategoryStock struct {
	Category      string `db:"category" json:"category"`
	MedicineCount int64  `db:"medicine_count" json:"medicine_count"`
	TotalStock    int64  `db:"total_stock" json:"total_stock"`
}

type Summary struct {
	TotalTransactions int64           `db:"total_transactions" json:"total_transactions"`
	TotalRevenue      decimal.Decimal `db:"total_revenue" json:"total_revenue"`
	TodayRevenue      decimal.Decimal `db:"today_revenue" json:"today_revenue"`
	TotalMedicines    int64           `db:"total_medicines" json:"total_medicines"`
	LowStockCount     int64           `db:"low_stock_count" json:"low_stock_count"`
	ExpiredCount      int64           `db:"expired_count" json:"expired_count"`
	ExpiringSoonCount int64           `db:"expiring_soon_count" json:"expiring_soon_count"`
}

type ExpiryRisk struct {
	MedicineID          int64       `json:"medicine_id"`
	Name                string      `json:"name"`
	BatchNumber         *string     `json:"batch_number,omitempty"`
	CurrentStock        int64       `json:"current_stock"`
	ExpiryDate          domain.Date `json:"expiry_date"`
	DaysUntilExpiry     int         `json:"days_until_expiry"`
	AvgDailySales       float64     `json:"avg_daily_sales"`
	EstimatedDaysToSell float64     `json:"estimated_days_to_sell"`
	RiskScore           float64     `json:"risk_score"`
	RiskLevel           string      `json:"risk_level"`
	RecommendedAction   string      `json:"recommended_action"`
}

func clamp(v, fallback, max int) int {
	if v <= 0 {
		return fallback
	}
	if v > max {
		return max
	}
	return v
}

// DailySales returns one entry per day for the last days days, oldest first, including empty days.
// Rows are bucketed by UTC calendar day.
func (s *Service) DailySales(ctx context.Context, days int) ([]DailySales, error) {
	days = clamp(days, defaultTrendDays, maxTrendDays)
	today := domain.NewDate(s.now())
	first := today.AddDays(-(days - 1))

	var rows []struct {
		CreatedAt   time.Time       `db:"created_at"`
		TotalAmount decimal.Decimal `db:"total_amount"`
	}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT created_at, total_amount FROM sales WHERE created_at >= ? AND created_at < ?`),
		first.Time, today.AddDays(1).Time)
	if err != nil {
		return nil, database.Classify(err, "sale")
	}

	out := make([]DailySales, days)
	index := make(map[string]int, days)
	for i := range out {
		d := first.AddDays(i)
		out[i] = DailySales{Date: d.String(), Label: d.Format("Mon, 2 Jan"), Revenue: decimal.Zero}
		index[d.String()] = i
	}
	for _, r := range rows {
		i, ok := index[domain.NewDate(r.CreatedAt.UTC()).String()]
		if !ok {
			continue
		}
		out[i].TotalSales++
		out[i].Revenue = out[i].Revenue.Add(r.TotalAmount)
	}
	return out, nil
}

func (s *Service) TopMedicines(ctx context.Context, limit int) ([]TopMedicine, error) {
	limit = clamp(limit, defaultTopLimit, maxTopLimit)
	out := []TopMedicine{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT si.medicine_id, m.name, SUM(si.quantity) AS total_sold, COALESCE(SUM(si.subtotal), 0) AS revenue
		FROM sale_items si JOIN medicines m ON m.id = si.medicine_id
		GROUP BY si.medicine_id, m.name
		ORDER BY total_sold DESC, m.name ASC
		LIMIT ?`), limit)
	if err != nil {
		return nil, database.Classify(err, "sale item")
	}
	return out, nil
}

func (s *Service) CategoryStock(ctx context.Context) ([]CategoryStock, error) {
	out := []CategoryStock{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT COALESCE(category, 'Other') AS category, COUNT(*) AS medicine_count,
			COALESCE(SUM(stock_quantity), 0) AS total_stock
		FROM medicines
		GROUP BY COALESCE(category, 'Other')
		ORDER BY total_stock DESC, category ASC`)
	if err != nil {
		return nil, database.Classify(err, "medicine")
	}
	return out, nil
}

// Summary gathers the sales and inventory counters concurrently.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	today := domain.NewDate(s.now())
	var out Summary
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var row struct {
			TotalTransactions int64           `db:"total_transactions"`
			TotalRevenue      decimal.Decimal `db:"total_revenue"`
			TodayRevenue      decimal.Decimal `db:"today_revenue"`
		}
		err := s.db.GetContext(gctx, &row, s.db.Rebind(`
			SELECT COUNT(*) AS total_transactions,
				COALESCE(SUM(total_amount), 0) AS total_revenue,
				COALESCE(SUM(CASE WHEN created_at >= ? AND created_at < ? THEN total_amount ELSE 0 END), 0) AS today_revenue
			FROM sales`), today.Time, today.AddDays(1).Time)
		if err != nil {
			return database.Classify(err, "sale")
		}
		out.TotalTransactions, out.TotalRevenue, out.TodayRevenue = row.TotalTransactions, row.TotalRevenue, row.TodayRevenue
		return nil
	})

	g.Go(func() error {
		var row struct {
			TotalMedicines    int64 `db:"total_medicines"`
			LowStockCount     int64 `db:"low_stock_count"`
			ExpiredCount      int64 `db:"expired_count"`
			ExpiringSoonCount int64 `db:"expiring_soon_count"`
		}
		err := s.db.GetContext(gctx, &row, s.db.Rebind(`
			SELECT COUNT(*) AS total_medicines,
				COALESCE(SUM(CASE WHEN stock_quantity <= reorder_level THEN 1 ELSE 0 END), 0) AS low_stock_count,
				COALESCE(SUM(CASE WHEN expiry_date IS NOT NULL AND expiry_date < ? THEN 1 ELSE 0 END), 0) AS expired_count,
				COALESCE(SUM(CASE WHEN expiry_date IS NOT NULL AND expiry_date >= ? AND expiry_date <= ? THEN 1 ELSE 0 END), 0) AS expiring_soon_count
			FROM medicines`), today, today, today.AddDays(expiringSoonDays))
		if err != nil {
			return database.Classify(err, "medicine")
		}
		out.TotalMedicines, out.LowStockCount = row.TotalMedicines, row.LowStockCount
		out.ExpiredCount, out.ExpiringSoonCount = row.ExpiredCount, row.ExpiringSoonCount
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExpiryRisk scores stocked medicines that expire within days days by how likely the stock is
// to outlive its shelf life at the last 30 days' sales rate. Highest risk first.
func (s *Service) ExpiryRisk(ctx context.Context, days int) ([]ExpiryRisk, error) {
	days = clamp(days, defaultRiskWindow, maxRiskWindow)
	today := domain.NewDate(s.now())

	var meds []struct {
		ID            int64       `db:"id"`
		Name          string      `db:"name"`
		BatchNumber   *string     `db:"batch_number"`
		StockQuantity int64       `db:"stock_quantity"`
		ExpiryDate    domain.Date `db:"expiry_date"`
	}
	err := s.db.SelectContext(ctx, &meds, s.db.Rebind(`
		SELECT id, name, batch_number, stock_quantity, expiry_date FROM medicines
		WHERE stock_quantity > 0 AND expiry_date IS NOT NULL AND expiry_date >= ? AND expiry_date <= ?`),
		today, today.AddDays(days))
	if err != nil {
		return nil, database.Classify(err, "medicine")
	}

	var sold []struct {
		MedicineID int64 `db:"medicine_id"`
		Quantity   int64 `db:"quantity"`
	}
	err = s.db.SelectContext(ctx, &sold, s.db.Rebind(`
		SELECT si.medicine_id, SUM(si.quantity) AS quantity
		FROM sale_items si JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= ?
		GROUP BY si.medicine_id`), today.AddDays(-salesHistoryDays).Time)
	if err != nil {
		return nil, database.Classify(err, "sale item")
	}
	soldBy := make(map[int64]int64, len(sold))
	for _, row := range sold {
		soldBy[row.MedicineID] = row.Quantity
	}

	out := make([]ExpiryRisk, 0, len(meds))
	for _, m := range meds {
		until := int(m.ExpiryDate.Sub(today.Time).Hours() / 24)
		r := ScoreExpiryRisk(m.StockQuantity, float64(soldBy[m.ID])/salesHistoryDays, until)
		r.MedicineID, r.Name, r.BatchNumber, r.ExpiryDate = m.ID, m.Name, m.BatchNumber, m.ExpiryDate
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].DaysUntilExpiry < out[j].DaysUntilExpiry
	})
	return out, nil
}

// ScoreExpiryRisk rates one batch. Stock expiring today counts as one day away.
func ScoreExpiryRisk(stock int64, avgDailySales float64, daysUntilExpiry int) ExpiryRisk {
	if daysUntilExpiry < 1 {
		daysUntilExpiry = 1
	}
	daysToSell := float64(stock) / math.Max(avgDailySales, minAvgDailySales)

	score := 10.0
	if daysToSell > float64(daysUntilExpiry) {
		score = math.Min(100, daysToSell/float64(daysUntilExpiry)*100)
	}

	level, action := "low", "No action needed"
	switch {
	case score > highRiskThreshold:
		level, action = "high", "Offer discount or return to supplier"
	case score > mediumRiskThreshold:
		level, action = "medium", "Monitor closely and promote"
	}

	return ExpiryRisk{
		CurrentStock:        stock,
		DaysUntilExpiry:     daysUntilExpiry,
		AvgDailySales:       round(avgDailySales, 2),
		EstimatedDaysToSell: round(daysToSell, 1),
		RiskScore:           round(score, 2),
		RiskLevel:           level,
		RecommendedAction:   action,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
