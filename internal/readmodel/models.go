package readmodel

import "time"

const (
	CollectionBatches     = "batches"
	CollectionAllocations = "allocations"
)

// BatchReadModel is the read model for a batch and its current allocations
type BatchReadModel struct {
	Reference         string                `json:"reference"`
	SKU               string                `json:"sku"`
	PurchasedQuantity int                   `json:"purchased_quantity"`
	AllocatedQuantity int                   `json:"allocated_quantity"`
	AvailableQuantity int                   `json:"available_quantity"`
	ETA               *time.Time            `json:"eta,omitempty"`
	Allocations       []AllocationReadModel `json:"allocations"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	Version           int                   `json:"version"`
}

// AllocationReadModel records which batch an order line was allocated to
type AllocationReadModel struct {
	OrderID     string    `json:"order_id"`
	SKU         string    `json:"sku"`
	Qty         int       `json:"qty"`
	Reference   string    `json:"reference"`
	AllocatedAt time.Time `json:"allocated_at"`
}

// AllocationID is the read store key of the allocations of one order and
// SKU. The stored value is a []AllocationReadModel.
func AllocationID(orderID, sku string) string {
	return orderID + "/" + sku
}
