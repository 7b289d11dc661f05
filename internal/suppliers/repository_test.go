package suppliers_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spis/m/internal/apperr"
	"spis/m/internal/database/dbtest"
	"spis/m/internal/inventory"
	"spis/m/internal/suppliers"
)

func strPtr(s string) *string { return &s }

func TestSupplierLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	repo := suppliers.NewRepository(db)
	ctx := context.Background()

	acme, err := repo.Create(ctx, suppliers.Input{Name: "Acme Pharma", ContactPerson: strPtr("Ravi"), Email: strPtr("sales@acme.test")})
	require.NoError(t, err)
	_, err = repo.Create(ctx, suppliers.Input{Name: "Zenith Labs"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, suppliers.Input{Name: "Acme Pharma"})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	list, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Acme Pharma", list[0].Name)

	list, err = repo.List(ctx, "ravi")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, acme.ID, list[0].ID)

	updated, err := repo.Update(ctx, acme.ID, suppliers.UpdateInput{City: strPtr("Pune")})
	require.NoError(t, err)
	require.NotNil(t, updated.City)
	assert.Equal(t, "Pune", *updated.City)

	_, err = repo.Update(ctx, acme.ID, suppliers.UpdateInput{})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	_, err = repo.Update(ctx, 404, suppliers.UpdateInput{City: strPtr("Goa")})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	_, err = repo.Get(ctx, 404)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestDeleteReferencedSupplierIsConflict(t *testing.T) {
	db := dbtest.Open(t)
	repo := suppliers.NewRepository(db)
	meds := inventory.NewRepository(db)
	ctx := context.Background()

	s, err := repo.Create(ctx, suppliers.Input{Name: "Acme"})
	require.NoError(t, err)
	_, err = meds.Create(ctx, inventory.CreateInput{Name: "Zinc", UnitPrice: decimal.NewFromInt(1), SupplierID: &s.ID}, 0)
	require.NoError(t, err)

	err = repo.Delete(ctx, s.ID)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	other, err := repo.Create(ctx, suppliers.Input{Name: "Unused"})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, other.ID))
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(repo.Delete(ctx, other.ID)))
}
