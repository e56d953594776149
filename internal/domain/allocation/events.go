package allocation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/allocation/internal/infrastructure/store"
)

const (
	EventBatchCreated    = "BatchCreated"
	EventLineAllocated   = "LineAllocated"
	EventLineDeallocated = "LineDeallocated"
)

type BatchCreated struct {
	Reference string     `json:"reference"`
	SKU       string     `json:"sku"`
	Quantity  int        `json:"quantity"`
	ETA       *time.Time `json:"eta,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type LineAllocated struct {
	Reference   string    `json:"reference"`
	OrderID     string    `json:"order_id"`
	SKU         string    `json:"sku"`
	Qty         int       `json:"qty"`
	AllocatedAt time.Time `json:"allocated_at"`
}

type LineDeallocated struct {
	Reference     string    `json:"reference"`
	OrderID       string    `json:"order_id"`
	SKU           string    `json:"sku"`
	Qty           int       `json:"qty"`
	DeallocatedAt time.Time `json:"deallocated_at"`
}

// ApplyEvent folds a stored event into the batch state
func (b *Batch) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventBatchCreated:
		var data BatchCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		b.Reference = data.Reference
		b.SKU = data.SKU
		b.PurchasedQuantity = data.Quantity
		b.ETA = data.ETA
		b.allocations = make(map[OrderLine]struct{})
	case EventLineAllocated:
		var data LineAllocated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		line := OrderLine{OrderID: data.OrderID, SKU: data.SKU, Qty: data.Qty}
		if !b.CanAllocate(line) && !b.IsAllocated(line) {
			return fmt.Errorf("line %s/%s x%d does not fit batch %s", line.OrderID, line.SKU, line.Qty, b.Reference)
		}
		b.Allocate(line)
	case EventLineDeallocated:
		var data LineDeallocated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		b.Deallocate(OrderLine{OrderID: data.OrderID, SKU: data.SKU, Qty: data.Qty})
	}
	b.Version = event.Version
	return nil
}
