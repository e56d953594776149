package allocation

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfStock      = errors.New("out of stock")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidSKU      = errors.New("sku is required")
	ErrInvalidOrderID  = errors.New("order_id is required")
	ErrBatchExists     = errors.New("batch already exists")
	ErrBatchNotFound   = errors.New("batch not found")
)

// OutOfStockError is returned by Allocate when no batch can take a line.
// It matches ErrOutOfStock under errors.Is.
type OutOfStockError struct {
	SKU string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock for sku %s", e.SKU)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}
