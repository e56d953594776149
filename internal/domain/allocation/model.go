package allocation

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// OrderLine is a request for Qty units of SKU on behalf of an order.
// It is a value: two lines with the same fields are interchangeable, which
// is what lets Batch keep its allocations in a set. Qty must be positive;
// the behaviour for zero or negative quantities is undefined.
type OrderLine struct {
	OrderID string `json:"order_id"`
	SKU     string `json:"sku"`
	Qty     int    `json:"qty"`
}

// Batch is a quantity of stock for a single SKU. A nil ETA means the stock is
// already in the warehouse; otherwise it is expected to arrive on ETA.
//
// Batches are entities: Equal and Key look only at Reference, so two Batch
// values with the same reference are the same batch even if their other
// fields differ.
//
// A Batch is not safe for concurrent use.
type Batch struct {
	Reference         string
	SKU               string
	PurchasedQuantity int
	ETA               *time.Time
	Version           int

	allocations map[OrderLine]struct{}
}

func NewBatch(ref, sku string, qty int, eta *time.Time) *Batch {
	return &Batch{
		Reference:         ref,
		SKU:               sku,
		PurchasedQuantity: qty,
		ETA:               eta,
		allocations:       make(map[OrderLine]struct{}),
	}
}

// AllocatedQuantity is the sum of the quantities of all allocated lines
func (b *Batch) AllocatedQuantity() int {
	total := 0
	for line := range b.allocations {
		total += line.Qty
	}
	return total
}

func (b *Batch) AvailableQuantity() int {
	return b.PurchasedQuantity - b.AllocatedQuantity()
}

// CanAllocate reports whether line is for this batch's SKU and fits in the
// remaining stock.
func (b *Batch) CanAllocate(line OrderLine) bool {
	return line.SKU == b.SKU && b.AvailableQuantity() >= line.Qty
}

// Allocate records line against the batch. It does nothing when the line
// cannot be allocated or is already allocated; callers that need a failure
// signal use the package-level Allocate.
func (b *Batch) Allocate(line OrderLine) {
	if !b.CanAllocate(line) {
		return
	}
	if b.allocations == nil {
		b.allocations = make(map[OrderLine]struct{})
	}
	b.allocations[line] = struct{}{}
}

// Deallocate removes line if it is allocated to the batch.
func (b *Batch) Deallocate(line OrderLine) {
	delete(b.allocations, line)
}

// IsAllocated reports whether line is currently allocated to the batch
func (b *Batch) IsAllocated(line OrderLine) bool {
	_, ok := b.allocations[line]
	return ok
}

// Allocations returns the allocated lines ordered by order ID, then quantity.
func (b *Batch) Allocations() []OrderLine {
	lines := make([]OrderLine, 0, len(b.allocations))
	for line := range b.allocations {
		lines = append(lines, line)
	}
	slices.SortFunc(lines, func(x, y OrderLine) int {
		if c := strings.Compare(x.OrderID, y.OrderID); c != 0 {
			return c
		}
		if c := strings.Compare(x.SKU, y.SKU); c != 0 {
			return c
		}
		return x.Qty - y.Qty
	})
	return lines
}

// Equal reports whether other is a batch with the same reference.
// Values of any other type, OrderLine included, are never equal to a batch.
func (b *Batch) Equal(other any) bool {
	switch o := other.(type) {
	case *Batch:
		return o != nil && b.Reference == o.Reference
	case Batch:
		return b.Reference == o.Reference
	default:
		return false
	}
}

// Key is the batch identity, for use as a map key when deduplicating batches
func (b *Batch) Key() string {
	return b.Reference
}

// ComparePriority orders batches for allocation: batches in the warehouse
// come before batches in transit, and among those in transit the earliest
// ETA comes first. Two warehouse batches, or two with the same ETA, compare
// equal so that a stable sort keeps their input order.
func ComparePriority(a, b *Batch) int {
	switch {
	case a.ETA == nil && b.ETA == nil:
		return 0
	case a.ETA == nil:
		return -1
	case b.ETA == nil:
		return 1
	default:
		return a.ETA.Compare(*b.ETA)
	}
}

// GetID returns the aggregate id
func (b *Batch) GetID() string { return b.Reference }

// GetVersion returns the aggregate version
func (b *Batch) GetVersion() int { return b.Version }

// SetVersion sets the aggregate version
func (b *Batch) SetVersion(v int) { b.Version = v }

type batchState struct {
	Reference         string      `json:"reference"`
	SKU               string      `json:"sku"`
	PurchasedQuantity int         `json:"purchased_quantity"`
	ETA               *time.Time  `json:"eta,omitempty"`
	Version           int         `json:"version"`
	Allocations       []OrderLine `json:"allocations"`
}

// MarshalJSON encodes the batch including its allocations, for snapshots
func (b *Batch) MarshalJSON() ([]byte, error) {
	return json.Marshal(batchState{
		Reference:         b.Reference,
		SKU:               b.SKU,
		PurchasedQuantity: b.PurchasedQuantity,
		ETA:               b.ETA,
		Version:           b.Version,
		Allocations:       b.Allocations(),
	})
}

func (b *Batch) UnmarshalJSON(data []byte) error {
	var s batchState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b.Reference = s.Reference
	b.SKU = s.SKU
	b.PurchasedQuantity = s.PurchasedQuantity
	b.ETA = s.ETA
	b.Version = s.Version
	b.allocations = make(map[OrderLine]struct{}, len(s.Allocations))
	for _, line := range s.Allocations {
		b.allocations[line] = struct{}{}
	}
	return nil
}
