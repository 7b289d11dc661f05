// Package seed loads the starter medicine catalogue and the first admin account.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/inventory"
	"spis/m/internal/logger"
)

// MedicineCreator is the inventory write the loader needs.
type MedicineCreator interface {
	Create(ctx context.Context, in inventory.CreateInput, userID int64) (*domain.Medicine, error)
}

// catalogRow is one line of the catalogue CSV. Column order in the file does not matter.
type catalogRow struct {
	Name                 string `csv:"name"`
	GenericName          string `csv:"generic_name"`
	Category             string `csv:"category"`
	Manufacturer         string `csv:"manufacturer"`
	UnitPrice            string `csv:"unit_price"`
	StockQuantity        string `csv:"stock_quantity"`
	ReorderLevel         string `csv:"reorder_level"`
	ExpiryDate           string `csv:"expiry_date"`
	BatchNumber          string `csv:"batch_number"`
	StorageLocation      string `csv:"storage_location"`
	RequiresPrescription string `csv:"requires_prescription"`
}

type LoadResult struct {
	Inserted int
	Skipped  int
	Invalid  int
}

// LoadMedicinesFile opens csvPath and loads it. A missing file is not an error.
func LoadMedicinesFile(ctx context.Context, repo MedicineCreator, csvPath string, log *logger.Logger) (LoadResult, error) {
	file, err := os.Open(csvPath)
	if os.IsNotExist(err) {
		log.Warn(log.WithField(ctx, "path", csvPath), "medicine catalogue not found, skipping seed")
		return LoadResult{}, nil
	}
	if err != nil {
		return LoadResult{}, fmt.Errorf("open medicine catalogue: %w", err)
	}
	defer file.Close()
	return LoadMedicines(ctx, repo, file, log)
}

// LoadMedicines ingests catalogue rows through the inventory repository.
// Rows that already exist are skipped, so loading the same file twice is harmless.
func LoadMedicines(ctx context.Context, repo MedicineCreator, r io.Reader, log *logger.Logger) (LoadResult, error) {
	var rows []catalogRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return LoadResult{}, fmt.Errorf("parse medicine catalogue: %w", err)
	}

	var res LoadResult
	for i, row := range rows {
		in, err := row.input()
		if err != nil {
			res.Invalid++
			log.Warn(log.WithFields(ctx, map[string]any{"row": i + 2, "reason": err.Error()}), "skipping invalid catalogue row")
			continue
		}

		_, err = repo.Create(ctx, in, 0)
		if err == nil {
			res.Inserted++
			continue
		}
		switch apperr.CodeOf(err) {
		case apperr.CodeConflict:
			res.Skipped++
		case apperr.CodeValidation:
			res.Invalid++
			log.Warn(log.WithFields(ctx, map[string]any{"row": i + 2, "reason": err.Error()}), "skipping invalid catalogue row")
		default:
			return res, fmt.Errorf("insert medicine %q: %w", in.Name, err)
		}
	}

	log.Info(log.WithFields(ctx, map[string]any{
		"inserted": res.Inserted,
		"skipped":  res.Skipped,
		"invalid":  res.Invalid,
	}), "seeded medicine catalogue")
	return res, nil
}

func (row catalogRow) input() (inventory.CreateInput, error) {
	name := strings.TrimSpace(row.Name)
	if name == "" {
		return inventory.CreateInput{}, fmt.Errorf("name is empty")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(row.UnitPrice))
	if err != nil {
		return inventory.CreateInput{}, fmt.Errorf("unit_price %q: %w", row.UnitPrice, err)
	}
	in := inventory.CreateInput{
		Name:            name,
		GenericName:     optional(row.GenericName),
		Category:        optional(row.Category),
		Manufacturer:    optional(row.Manufacturer),
		UnitPrice:       price,
		BatchNumber:     optional(row.BatchNumber),
		StorageLocation: optional(row.StorageLocation),
	}

	if v := strings.TrimSpace(row.StockQuantity); v != "" {
		if in.StockQuantity, err = strconv.ParseInt(v, 10, 64); err != nil {
			return inventory.CreateInput{}, fmt.Errorf("stock_quantity %q: %w", v, err)
		}
	}
	if v := strings.TrimSpace(row.ReorderLevel); v != "" {
		level, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return inventory.CreateInput{}, fmt.Errorf("reorder_level %q: %w", v, err)
		}
		in.ReorderLevel = &level
	}
	if v := strings.TrimSpace(row.ExpiryDate); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			return inventory.CreateInput{}, err
		}
		in.ExpiryDate = &d
	}
	if v := strings.TrimSpace(row.RequiresPrescription); v != "" {
		if in.RequiresPrescription, err = strconv.ParseBool(v); err != nil {
			return inventory.CreateInput{}, fmt.Errorf("requires_prescription %q: %w", v, err)
		}
	}
	return in, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
