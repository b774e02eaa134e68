package domain

type ItemStatus string

const (
	StatusInStock      ItemStatus = "in_stock"
	StatusLowStock     ItemStatus = "low_stock"
	StatusOutOfStock   ItemStatus = "out_of_stock"
	StatusOnOrder      ItemStatus = "on_order"
	StatusDiscontinued ItemStatus = "discontinued"
)

// Valid reports whether s is one of the known statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusInStock, StatusLowStock, StatusOutOfStock, StatusOnOrder, StatusDiscontinued:
		return true
	}
	return false
}

// Explicit reports whether the status is set by hand rather than derived from
// the quantity.
func (s ItemStatus) Explicit() bool {
	return s == StatusOnOrder || s == StatusDiscontinued
}

// NeedsRestock reports whether the status signals a shortage.
func (s ItemStatus) NeedsRestock() bool {
	return s == StatusLowStock || s == StatusOutOfStock
}

// DeriveStatus computes the stock status from the quantity and the optional
// minimum threshold.
func DeriveStatus(quantity int, minThreshold *int) ItemStatus {
	switch {
	case quantity <= 0:
		return StatusOutOfStock
	case minThreshold != nil && quantity <= *minThreshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// NextStatus re-derives the status after a quantity change. Explicit
// statuses are kept.
func NextStatus(current ItemStatus, quantity int, minThreshold *int) ItemStatus {
	if current.Explicit() {
		return current
	}
	return DeriveStatus(quantity, minThreshold)
}

// AdjustQuantity applies delta to the item's quantity, clamping at zero, and
// re-derives its status.
func (i *Item) AdjustQuantity(delta int) {
	q := i.Quantity + delta
	if q < 0 {
		q = 0
	}
	i.Quantity = q
	i.Status = NextStatus(i.Status, q, i.MinThreshold)
}
