// Package sales records point-of-sale transactions.
//
// A sale is one transaction: every line's stock is checked and decremented by a single
// conditional UPDATE, and the sale row, its items and the inventory log rows are written
// alongside. Either all of it commits or none of it does.
package sales

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/database"
	"spis/m/internal/inventory"
	"spis/m/internal/metrics"
)

const maxInvoiceAttempts = 3

var taxRate = decimal.RequireFromString("0.18")

var errInvoiceCollision = errors.New("invoice number already taken")

type ItemInput struct {
	MedicineID int64 `json:"medicine_id" validate:"required,gt=0"`
	Quantity   int64 `json:"quantity" validate:"required,gt=0"`
}

type CreateInput struct {
	CustomerName   *string         `json:"customer_name,omitempty" validate:"omitempty,max=120"`
	CustomerPhone  *string         `json:"customer_phone,omitempty" validate:"omitempty,max=20"`
	Items          []ItemInput     `json:"items" validate:"dive"`
	PaymentMethod  string          `json:"payment_method" validate:"required"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type Service struct {
	db          *database.DB
	metrics     *metrics.Metrics
	nextInvoice func() string
}

// NewService builds a sale service whose invoice numbers come from the snowflake node nodeID.
// Replicas sharing a database need distinct node ids.
func NewService(db *database.DB, nodeID int64, m *metrics.Metrics) (*Service, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("invoice node %d: %w", nodeID, err)
	}
	return &Service{
		db:      db,
		metrics: m,
		nextInvoice: func() string {
			return "INV-" + node.Generate().String()
		},
	}, nil
}

// Pricing is the money breakdown of a cart.
type Pricing struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Price applies the fixed 18% tax and the discount to subtotal.
func Price(subtotal, discount decimal.Decimal) (Pricing, error) {
	subtotal = subtotal.Round(2)
	discount = discount.Round(2)
	if discount.IsNegative() {
		return Pricing{}, apperr.New(apperr.CodeValidation, "discount_amount must not be negative")
	}
	tax := subtotal.Mul(taxRate).Round(2)
	gross := subtotal.Add(tax)
	if discount.GreaterThan(gross) {
		return Pricing{}, apperr.Newf(apperr.CodeValidation, "discount_amount %s exceeds the sale total %s", discount.StringFixed(2), gross.StringFixed(2))
	}
	return Pricing{Subtotal: subtotal, Tax: tax, Discount: discount, Total: gross.Sub(discount)}, nil
}

// Create records a sale for userID. Only an invoice number collision is retried.
func (s *Service) Create(ctx context.Context, in CreateInput, userID int64) (*domain.SaleReceipt, error) {
	start := time.Now()
	receipt, err := s.create(ctx, in, userID)
	if err != nil {
		s.metrics.SaleRejected(strings.ToLower(string(apperr.CodeOf(err))), time.Since(start))
		return nil, err
	}
	s.metrics.SaleCompleted(receipt.TotalAmount, time.Since(start))
	return receipt, nil
}

func (s *Service) create(ctx context.Context, in CreateInput, userID int64) (*domain.SaleReceipt, error) {
	method, err := validate(in)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		receipt, err := s.createOnce(ctx, in, method, userID)
		if errors.Is(err, errInvoiceCollision) {
			if attempt < maxInvoiceAttempts {
				continue
			}
			return nil, apperr.Wrap(apperr.CodeConflict, err, "could not allocate a unique invoice number")
		}
		return receipt, err
	}
}

func validate(in CreateInput) (domain.PaymentMethod, error) {
	if len(in.Items) == 0 {
		return "", apperr.New(apperr.CodeValidation, "sale must contain at least one item")
	}
	for i, item := range in.Items {
		if item.MedicineID <= 0 {
			return "", apperr.Newf(apperr.CodeValidation, "items[%d].medicine_id must be positive", i)
		}
		if item.Quantity <= 0 {
			return "", apperr.Newf(apperr.CodeValidation, "items[%d].quantity must be greater than 0", i)
		}
	}
	method, err := domain.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeValidation, err, "payment_method must be one of cash, card, upi, insurance")
	}
	if in.DiscountAmount.IsNegative() {
		return "", apperr.New(apperr.CodeValidation, "discount_amount must not be negative")
	}
	return method, nil
}

type line struct {
	item  ItemInput
	price decimal.Decimal
	after int64
}

func (s *Service) createOnce(ctx context.Context, in CreateInput, method domain.PaymentMethod, userID int64) (*domain.SaleReceipt, error) {
	var receipt *domain.SaleReceipt
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		lines := make([]line, len(in.Items))
		order := make([]int, len(in.Items))
		for i, item := range in.Items {
			lines[i].item = item
			order[i] = i
		}
		// ascending medicine id keeps row locks in one global order across concurrent carts
		sort.SliceStable(order, func(a, b int) bool {
			return in.Items[order[a]].MedicineID < in.Items[order[b]].MedicineID
		})

		now := database.Now()
		for _, i := range order {
			price, after, err := decrement(ctx, tx, lines[i].item, now)
			if err != nil {
				return err
			}
			lines[i].price, lines[i].after = price, after
		}

		subtotal := decimal.Zero
		for _, l := range lines {
			subtotal = subtotal.Add(l.price.Mul(decimal.NewFromInt(l.item.Quantity)))
		}
		pricing, err := Price(subtotal, in.DiscountAmount)
		if err != nil {
			return err
		}

		invoice := s.nextInvoice()
		var saleID int64
		err = tx.QueryRowxContext(ctx, tx.Rebind(`
			INSERT INTO sales (invoice_number, customer_name, customer_phone, subtotal, tax_amount, discount_amount,
				total_amount, payment_method, user_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			invoice, trimPtr(in.CustomerName), trimPtr(in.CustomerPhone), pricing.Subtotal, pricing.Tax,
			pricing.Discount, pricing.Total, method, userID, now).Scan(&saleID)
		if database.IsUniqueViolationOn(err, "invoice_number") {
			return errInvoiceCollision
		}
		if err != nil {
			return database.Classify(err, "sale")
		}

		for _, l := range lines {
			qty := decimal.NewFromInt(l.item.Quantity)
			_, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO sale_items (sale_id, medicine_id, quantity, unit_price, subtotal)
				VALUES (?, ?, ?, ?, ?)`), saleID, l.item.MedicineID, l.item.Quantity, l.price, l.price.Mul(qty).Round(2))
			if err != nil {
				return database.Classify(err, "sale item")
			}
			if err := inventory.WriteLog(ctx, tx, l.item.MedicineID, domain.ActionSale, -l.item.Quantity, l.after, userID); err != nil {
				return err
			}
		}

		receipt = &domain.SaleReceipt{ID: saleID, InvoiceNumber: invoice, TotalAmount: pricing.Total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// decrement takes quantity units of one medicine if and only if enough are on hand.
// It returns the unit price and the stock left, both read by the same statement.
func decrement(ctx context.Context, tx *sqlx.Tx, item ItemInput, now time.Time) (decimal.Decimal, int64, error) {
	var row struct {
		StockQuantity int64           `db:"stock_quantity"`
		UnitPrice     decimal.Decimal `db:"unit_price"`
	}
	err := tx.GetContext(ctx, &row, tx.Rebind(`
		UPDATE medicines SET stock_quantity = stock_quantity - ?, updated_at = ?
		WHERE id = ? AND stock_quantity >= ?
		RETURNING stock_quantity, unit_price`), item.Quantity, now, item.MedicineID, item.Quantity)
	if err == nil {
		return row.UnitPrice, row.StockQuantity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, 0, database.Classify(err, "medicine")
	}

	var available int64
	err = tx.GetContext(ctx, &available, tx.Rebind(`SELECT stock_quantity FROM medicines WHERE id = ?`), item.MedicineID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, 0, apperr.NotFound(fmt.Sprintf("medicine %d", item.MedicineID))
	}
	if err != nil {
		return decimal.Zero, 0, database.Classify(err, "medicine")
	}
	return decimal.Zero, 0, apperr.Newf(apperr.CodeInsufficientStock, "insufficient stock for medicine %d", item.MedicineID).
		WithDetails(map[string]int64{
			"medicine_id": item.MedicineID,
			"requested":   item.Quantity,
			"available":   available,
		})
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
