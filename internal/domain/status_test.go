package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(i int) *int { return &i }

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		min      *int
		expected ItemStatus
	}{
		{name: "zero is out of stock", quantity: 0, min: intPtr(5), expected: StatusOutOfStock},
		{name: "zero without threshold", quantity: 0, min: nil, expected: StatusOutOfStock},
		{name: "below threshold", quantity: 3, min: intPtr(8), expected: StatusLowStock},
		{name: "at threshold", quantity: 8, min: intPtr(8), expected: StatusLowStock},
		{name: "above threshold", quantity: 9, min: intPtr(8), expected: StatusInStock},
		{name: "no threshold", quantity: 1, min: nil, expected: StatusInStock},
		{name: "zero threshold", quantity: 1, min: intPtr(0), expected: StatusInStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveStatus(tt.quantity, tt.min))
		})
	}
}

func TestNextStatusKeepsExplicitStatus(t *testing.T) {
	assert.Equal(t, StatusOnOrder, NextStatus(StatusOnOrder, 0, nil))
	assert.Equal(t, StatusDiscontinued, NextStatus(StatusDiscontinued, 50, intPtr(2)))
	assert.Equal(t, StatusLowStock, NextStatus(StatusInStock, 2, intPtr(2)))
}

func TestAdjustQuantity(t *testing.T) {
	item := Item{Quantity: 4, MinThreshold: intPtr(8), Status: StatusLowStock}

	item.AdjustQuantity(-1)
	assert.Equal(t, 3, item.Quantity)
	assert.Equal(t, StatusLowStock, item.Status)

	item.AdjustQuantity(-10)
	assert.Equal(t, 0, item.Quantity, "quantity never goes negative")
	assert.Equal(t, StatusOutOfStock, item.Status)

	item.AdjustQuantity(20)
	assert.Equal(t, 20, item.Quantity)
	assert.Equal(t, StatusInStock, item.Status)
}
