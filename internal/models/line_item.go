package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItem is one requested article. It is embedded by value in requests and
// never mutated in place; edits replace the whole list.
type LineItem struct {
	Name        string          `bson:"name" json:"name" binding:"required"`
	Description string          `bson:"description" json:"description"`
	UnitPrice   decimal.Decimal `bson:"unitPrice" json:"unitPrice"`
	Quantity    int             `bson:"quantity" json:"quantity" binding:"required,gt=0"`
}

// TotalCost is UnitPrice * Quantity.
func (i LineItem) TotalCost() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i LineItem) Validate() error {
	if i.Name == "" {
		return errors.New("item name is required")
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("item %q: quantity must be greater than zero", i.Name)
	}
	if i.UnitPrice.IsNegative() {
		return fmt.Errorf("item %q: unit price must not be negative", i.Name)
	}
	return nil
}

// ValidateLineItems checks a request's item list.
func ValidateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return errors.New("at least one item is required")
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SumTotal returns the total cost of all items.
func SumTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalCost())
	}
	return total
}
