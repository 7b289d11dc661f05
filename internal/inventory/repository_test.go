package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/database"
	"spis/m/internal/database/dbtest"
	"spis/m/internal/inventory"
)

func strPtr(s string) *string { return &s }
func intPtr(v int64) *int64    { return &v }

func newRepo(t *testing.T) (*inventory.Repository, *database.DB) {
	db := dbtest.Open(t)
	return inventory.NewRepository(db), db
}

func create(t *testing.T, repo *inventory.Repository, in inventory.CreateInput) *domain.Medicine {
	t.Helper()
	m, err := repo.Create(context.Background(), in, 0)
	require.NoError(t, err)
	return m
}

func TestCreateWritesAddLog(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	m := create(t, repo, inventory.CreateInput{Name: "Paracetamol", UnitPrice: decimal.RequireFromString("2.50"), StockQuantity: 40})
	assert.Equal(t, int64(40), m.StockQuantity)
	assert.Equal(t, int64(10), m.ReorderLevel)
	assert.True(t, decimal.RequireFromString("2.5").Equal(m.UnitPrice))

	logs, err := repo.Logs(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ActionAdd, logs[0].ActionType)
	assert.Equal(t, int64(40), logs[0].QuantityChange)
	assert.Equal(t, int64(40), logs[0].QuantityAfter)

	empty := create(t, repo, inventory.CreateInput{Name: "Ibuprofen", UnitPrice: decimal.NewFromInt(3)})
	logs, err = repo.Logs(ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestCreateValidation(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, inventory.CreateInput{Name: "  ", UnitPrice: decimal.NewFromInt(1)}, 0)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Create(ctx, inventory.CreateInput{Name: "X", UnitPrice: decimal.NewFromInt(-1)}, 0)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Create(ctx, inventory.CreateInput{Name: "X", UnitPrice: decimal.NewFromInt(1), SupplierID: intPtr(99)}, 0)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestDuplicateBatchIsConflict(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	create(t, repo, inventory.CreateInput{Name: "Amoxicillin", UnitPrice: decimal.NewFromInt(5), BatchNumber: strPtr("B1")})
	create(t, repo, inventory.CreateInput{Name: "Amoxicillin", UnitPrice: decimal.NewFromInt(5), BatchNumber: strPtr("B2")})

	_, err := repo.Create(ctx, inventory.CreateInput{Name: "Amoxicillin", UnitPrice: decimal.NewFromInt(5), BatchNumber: strPtr("B1")}, 0)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestListFiltersAndSort(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	create(t, repo, inventory.CreateInput{Name: "Cetirizine", Category: strPtr("Antihistamine"), UnitPrice: decimal.NewFromInt(4), StockQuantity: 5})
	create(t, repo, inventory.CreateInput{Name: "Aspirin", GenericName: strPtr("acetylsalicylic acid"), Category: strPtr("Analgesic"), UnitPrice: decimal.NewFromInt(1), StockQuantity: 100})
	create(t, repo, inventory.CreateInput{Name: "Brufen", GenericName: strPtr("Ibuprofen"), Category: strPtr("Analgesic"), UnitPrice: decimal.NewFromInt(3), StockQuantity: 50})

	all, err := repo.List(ctx, inventory.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Aspirin", all[0].Name)

	byCategory, err := repo.List(ctx, inventory.ListFilter{Category: "Analgesic", Sort: "stock_quantity", Order: "desc"})
	require.NoError(t, err)
	require.Len(t, byCategory, 2)
	assert.Equal(t, "Aspirin", byCategory[0].Name)

	search, err := repo.List(ctx, inventory.ListFilter{Search: "IBU"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "Brufen", search[0].Name)

	low, err := repo.List(ctx, inventory.ListFilter{LowStock: true})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Cetirizine", low[0].Name)

	_, err = repo.List(ctx, inventory.ListFilter{Sort: "password_hash"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestExpiringSoonExcludesExpired(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	today := domain.NewDate(database.Now())

	expired := today.AddDays(-1)
	soon := today.AddDays(10)
	later := today.AddDays(60)
	create(t, repo, inventory.CreateInput{Name: "Old", UnitPrice: decimal.NewFromInt(1), ExpiryDate: &expired})
	create(t, repo, inventory.CreateInput{Name: "Soon", UnitPrice: decimal.NewFromInt(1), ExpiryDate: &soon})
	create(t, repo, inventory.CreateInput{Name: "Later", UnitPrice: decimal.NewFromInt(1), ExpiryDate: &later})

	got, err := repo.ExpiringSoon(ctx, 30)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Soon", got[0].Name)
	require.NotNil(t, got[0].ExpiryDate)
	assert.Equal(t, soon.String(), got[0].ExpiryDate.String())

	got, err = repo.ExpiringSoon(ctx, 90)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestClampExpiryWindow(t *testing.T) {
	assert.Equal(t, 30, inventory.ClampExpiryWindow(0, 30))
	assert.Equal(t, 30, inventory.ClampExpiryWindow(-5, 30))
	assert.Equal(t, 7, inventory.ClampExpiryWindow(7, 30))
	assert.Equal(t, 365, inventory.ClampExpiryWindow(5000, 30))
	assert.Equal(t, 1, inventory.ClampExpiryWindow(0, 0))
}

func TestUpdateStockWritesAdjustLog(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	m := create(t, repo, inventory.CreateInput{Name: "Zinc", UnitPrice: decimal.NewFromInt(2), StockQuantity: 20})

	updated, err := repo.Update(ctx, m.ID, inventory.UpdateInput{StockQuantity: intPtr(12), Category: strPtr("Supplement")}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12), updated.StockQuantity)
	require.NotNil(t, updated.Category)
	assert.Equal(t, "Supplement", *updated.Category)

	logs, err := repo.Logs(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.ActionAdjust, logs[0].ActionType)
	assert.Equal(t, int64(-8), logs[0].QuantityChange)
	assert.Equal(t, int64(12), logs[0].QuantityAfter)

	_, err = repo.Update(ctx, m.ID, inventory.UpdateInput{Category: strPtr("Vitamins")}, 0)
	require.NoError(t, err)
	logs, err = repo.Logs(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2, "non-stock updates are not logged")
}

func TestUpdateErrors(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	create(t, repo, inventory.CreateInput{Name: "A", UnitPrice: decimal.NewFromInt(1)})
	b := create(t, repo, inventory.CreateInput{Name: "B", UnitPrice: decimal.NewFromInt(1)})

	_, err := repo.Update(ctx, b.ID, inventory.UpdateInput{}, 0)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Update(ctx, 999, inventory.UpdateInput{Name: strPtr("C")}, 0)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = repo.Update(ctx, b.ID, inventory.UpdateInput{Name: strPtr("A")}, 0)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	_, err = repo.Update(ctx, b.ID, inventory.UpdateInput{StockQuantity: intPtr(-1)}, 0)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestRestock(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	m := create(t, repo, inventory.CreateInput{Name: "Zinc", UnitPrice: decimal.NewFromInt(2), StockQuantity: 3})

	got, err := repo.Restock(ctx, m.ID, 7, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.StockQuantity)

	logs, err := repo.Logs(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, int64(7), logs[0].QuantityChange)
	assert.Equal(t, int64(10), logs[0].QuantityAfter)

	_, err = repo.Restock(ctx, m.ID, 0, 0)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	_, err = repo.Restock(ctx, 404, 1, 0)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestDeleteKeepsLogsAndRejectsReferenced(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()
	free := create(t, repo, inventory.CreateInput{Name: "Free", UnitPrice: decimal.NewFromInt(1), StockQuantity: 2})
	sold := create(t, repo, inventory.CreateInput{Name: "Sold", UnitPrice: decimal.NewFromInt(1), StockQuantity: 2})

	now := database.Now()
	_, err := db.ExecContext(ctx, `INSERT INTO users (username, email, password_hash, role, is_active, created_at, updated_at) VALUES ('u', 'u@example.com', 'x', 'pharmacist', 1, ?, ?)`, now, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO sales (invoice_number, subtotal, tax_amount, discount_amount, total_amount, payment_method, user_id, created_at) VALUES ('INV-1', 1, 0.18, 0, 1.18, 'cash', 1, ?)`, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO sale_items (sale_id, medicine_id, quantity, unit_price, subtotal) VALUES (1, ?, 1, 1, 1)`, sold.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, free.ID))
	_, err = repo.Get(ctx, free.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	logs, err := repo.Logs(ctx, free.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	err = repo.Delete(ctx, sold.ID)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	err = repo.Delete(ctx, free.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestLowStockOrdering(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	create(t, repo, inventory.CreateInput{Name: "Five", UnitPrice: decimal.NewFromInt(1), StockQuantity: 5})
	create(t, repo, inventory.CreateInput{Name: "Two", UnitPrice: decimal.NewFromInt(1), StockQuantity: 2})
	create(t, repo, inventory.CreateInput{Name: "Plenty", UnitPrice: decimal.NewFromInt(1), StockQuantity: 500})

	low, err := repo.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Two", low[0].Name)
	assert.True(t, low[0].IsLowStock())
}
