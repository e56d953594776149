package command

// CreateBatch registers stock. ETA is a YYYY-MM-DD date; empty means the
// stock is already in the warehouse.
type CreateBatch struct {
	Reference string `json:"reference"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	ETA       string `json:"eta,omitempty"`
}

type Allocate struct {
	OrderID string `json:"order_id"`
	SKU     string `json:"sku"`
	Qty     int    `json:"qty"`
}

type Deallocate struct {
	OrderID string `json:"order_id"`
	SKU     string `json:"sku"`
	Qty     int    `json:"qty"`
}
