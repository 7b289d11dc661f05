package sales

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/database"
	"spis/m/internal/query"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

const saleSelect = `SELECT s.id, s.invoice_number, s.customer_name, s.customer_phone, s.subtotal, s.tax_amount,
	s.discount_amount, s.total_amount, s.payment_method, s.user_id, COALESCE(u.full_name, u.username) AS sold_by,
	s.created_at
	FROM sales s LEFT JOIN users u ON u.id = s.user_id`

// Filter narrows sale listings. Dates are whole days and both ends are inclusive.
type Filter struct {
	StartDate     *domain.Date
	EndDate       *domain.Date
	PaymentMethod string
	UserID        *int64
	Limit         int
	Offset        int
}

func (f Filter) builder() (*query.Builder, error) {
	b := query.New()
	if f.StartDate != nil {
		b.Gte("s.created_at", f.StartDate.Time)
	}
	if f.EndDate != nil {
		b.Lt("s.created_at", f.EndDate.AddDays(1).Time)
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(f.StartDate.Time) {
		return nil, apperr.New(apperr.CodeValidation, "end_date must not be before start_date")
	}
	if f.PaymentMethod != "" {
		method, err := domain.ParsePaymentMethod(f.PaymentMethod)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeValidation, err, err.Error())
		}
		b.Eq("s.payment_method", method)
	}
	if f.UserID != nil {
		b.Eq("s.user_id", *f.UserID)
	}
	return b.OrderBy("s.created_at DESC, s.id DESC"), nil
}

// ClampLimit applies the listing default and ceiling.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func (s *Service) List(ctx context.Context, f Filter) ([]domain.Sale, error) {
	b, err := f.builder()
	if err != nil {
		return nil, err
	}
	return s.selectSales(ctx, b.Page(ClampLimit(f.Limit), f.Offset))
}

// Recent returns the latest limit sales with the seller's name.
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.List(ctx, Filter{Limit: limit})
}

func (s *Service) selectSales(ctx context.Context, b *query.Builder) ([]domain.Sale, error) {
	q, args := b.Build(saleSelect)
	out := []domain.Sale{}
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...); err != nil {
		return nil, database.Classify(err, "sale")
	}
	return out, nil
}

// Get returns the sale with its line items in the order they were sold.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.GetContext(ctx, &sale, s.db.Rebind(saleSelect+` WHERE s.id = ?`), id)
	if err != nil {
		return nil, database.Classify(err, fmt.Sprintf("sale %d", id))
	}

	sale.Items = []domain.SaleItem{}
	err = s.db.SelectContext(ctx, &sale.Items, s.db.Rebind(`
		SELECT si.id, si.sale_id, si.medicine_id, m.name AS medicine_name, si.quantity, si.unit_price, si.subtotal
		FROM sale_items si JOIN medicines m ON m.id = si.medicine_id
		WHERE si.sale_id = ? ORDER BY si.id ASC`), id)
	if err != nil {
		return nil, database.Classify(err, "sale item")
	}
	return &sale, nil
}

type exportRow struct {
	InvoiceNumber  string `csv:"invoice_number"`
	CreatedAt      string `csv:"created_at"`
	CustomerName   string `csv:"customer_name"`
	CustomerPhone  string `csv:"customer_phone"`
	PaymentMethod  string `csv:"payment_method"`
	Subtotal       string `csv:"subtotal"`
	TaxAmount      string `csv:"tax_amount"`
	DiscountAmount string `csv:"discount_amount"`
	TotalAmount    string `csv:"total_amount"`
	SoldBy         string `csv:"sold_by"`
}

// Export writes every sale matching f as CSV. Paging fields are ignored.
func (s *Service) Export(ctx context.Context, f Filter, w io.Writer) (int, error) {
	b, err := f.builder()
	if err != nil {
		return 0, err
	}
	list, err := s.selectSales(ctx, b)
	if err != nil {
		return 0, err
	}

	rows := make([]exportRow, 0, len(list))
	for _, sale := range list {
		rows = append(rows, exportRow{
			InvoiceNumber:  sale.InvoiceNumber,
			CreatedAt:      sale.CreatedAt.UTC().Format(time.RFC3339),
			CustomerName:   deref(sale.CustomerName),
			CustomerPhone:  deref(sale.CustomerPhone),
			PaymentMethod:  string(sale.PaymentMethod),
			Subtotal:       sale.Subtotal.StringFixed(2),
			TaxAmount:      sale.TaxAmount.StringFixed(2),
			DiscountAmount: sale.DiscountAmount.StringFixed(2),
			TotalAmount:    sale.TotalAmount.StringFixed(2),
			SoldBy:         deref(sale.SoldBy),
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return 0, apperr.Wrap(apperr.CodeInternal, err, "write sales csv")
	}
	return len(rows), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
