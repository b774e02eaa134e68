package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vbonduro/homeinv/internal/csvexport"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/repository"
)

// exportRow is the flat shape of one item in a CSV export.
type exportRow struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Quantity        int                 `json:"quantity"`
	Unit            string              `json:"unit"`
	Status          string              `json:"status"`
	MinThreshold    *int                `json:"min_threshold"`
	Category        string              `json:"category"`
	PrimaryLocation string              `json:"primary_location"`
	Tags            string              `json:"tags"`
	IsEssential     bool                `json:"is_essential"`
	IsFavorite      bool                `json:"is_favorite"`
	PurchasePrice   decimal.NullDecimal `json:"purchase_price"`
	CurrentValue    decimal.NullDecimal `json:"current_value"`
	Barcode         string              `json:"barcode"`
	Notes           string              `json:"notes"`
	CustomFields    domain.Fields       `json:"custom_fields"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func newExportRow(v domain.ItemView) exportRow {
	row := exportRow{
		ID:            v.ID,
		Name:          v.Name,
		Description:   v.Description,
		Quantity:      v.Quantity,
		Unit:          v.Unit,
		Status:        string(v.Status),
		MinThreshold:  v.MinThreshold,
		IsEssential:   v.IsEssential,
		IsFavorite:    v.IsFavorite,
		PurchasePrice: v.PurchasePrice,
		CurrentValue:  v.CurrentValue,
		Barcode:       v.Barcode,
		Notes:         v.Notes,
		CustomFields:  v.CustomFields,
		UpdatedAt:     v.UpdatedAt,
	}
	if v.Category != nil {
		row.Category = v.Category.Name
	}
	if p := v.PrimaryLocation(); p != nil {
		row.PrimaryLocation = p.Location.Name
		if p.Location.Path != nil {
			row.PrimaryLocation = *p.Location.Path
		}
	}
	names := make([]string, len(v.Tags))
	for i, t := range v.Tags {
		names[i] = t.Name
	}
	row.Tags = strings.Join(names, ";")
	return row
}

// ExportItemsCSV writes the items matching f as CSV.
func (s *InventoryService) ExportItemsCSV(ctx context.Context, w io.Writer, f repository.ItemFilter) (int, error) {
	views, err := s.repos.Items.ListViews(ctx, f)
	if err != nil {
		return 0, err
	}
	rows := make([]exportRow, len(views))
	for i, v := range views {
		rows[i] = newExportRow(v)
	}
	records, err := csvexport.Records(rows)
	if err != nil {
		return 0, err
	}
	if err := csvexport.Write(w, records); err != nil {
		return 0, err
	}
	s.logger.Info("items exported", "count", len(rows))
	return len(rows), nil
}
