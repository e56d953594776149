package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/example/allocation/internal/domain/allocation"
	"github.com/example/allocation/internal/infrastructure/store"
	"github.com/example/allocation/internal/readmodel"
	"go.uber.org/zap"
)

// Projector maintains batch and allocation read models from stored events.
// Events at or below the version already projected for a batch are skipped,
// so replay followed by consumption of the same events is harmless.
//
// Read models handed to the read store are never modified afterwards; each
// change stores a fresh copy, so queries may keep what they were given.
type Projector struct {
	readStore store.ReadStoreInterface
	logger    *zap.Logger
}

func NewProjector(readStore store.ReadStoreInterface, logger *zap.Logger) *Projector {
	return &Projector{
		readStore: readStore,
		logger:    logger.With(zap.String("component", "projector")),
	}
}

// HandleEvent has the kafka.MessageHandler signature
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	return p.Apply(event)
}

// Apply projects a single event
func (p *Projector) Apply(event store.Event) error {
	if event.AggregateType != allocation.AggregateType {
		return nil
	}

	p.logger.Debug("received event",
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
		zap.Int("version", event.Version),
	)

	switch event.EventType {
	case allocation.EventBatchCreated:
		var e allocation.BatchCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if _, exists := p.readStore.Get(readmodel.CollectionBatches, e.Reference); exists {
			return nil
		}
		p.readStore.Set(readmodel.CollectionBatches, e.Reference, &readmodel.BatchReadModel{
			Reference:         e.Reference,
			SKU:               e.SKU,
			PurchasedQuantity: e.Quantity,
			AvailableQuantity: e.Quantity,
			ETA:               e.ETA,
			Allocations:       []readmodel.AllocationReadModel{},
			CreatedAt:         e.CreatedAt,
			UpdatedAt:         e.CreatedAt,
			Version:           event.Version,
		})

	case allocation.EventLineAllocated:
		var e allocation.LineAllocated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		alloc := readmodel.AllocationReadModel{
			OrderID:     e.OrderID,
			SKU:         e.SKU,
			Qty:         e.Qty,
			Reference:   e.Reference,
			AllocatedAt: e.AllocatedAt,
		}
		applied := p.updateBatch(e.Reference, event.Version, func(b *readmodel.BatchReadModel) {
			b.Allocations = append(b.Allocations, alloc)
			b.UpdatedAt = e.AllocatedAt
		})
		if applied {
			p.addAllocation(alloc)
		}

	case allocation.EventLineDeallocated:
		var e allocation.LineDeallocated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		applied := p.updateBatch(e.Reference, event.Version, func(b *readmodel.BatchReadModel) {
			b.Allocations = slices.DeleteFunc(b.Allocations, func(a readmodel.AllocationReadModel) bool {
				return a.OrderID == e.OrderID && a.SKU == e.SKU && a.Qty == e.Qty
			})
			b.UpdatedAt = e.DeallocatedAt
		})
		if applied {
			p.removeAllocation(e)
		}

	default:
		p.logger.Warn("unknown event type", zap.String("event_type", event.EventType))
	}

	return nil
}

// updateBatch applies fn to the batch read model unless the event was
// already projected, then recomputes its quantities.
func (p *Projector) updateBatch(ref string, version int, fn func(*readmodel.BatchReadModel)) bool {
	applied := false
	found := p.readStore.Update(readmodel.CollectionBatches, ref, func(current any) any {
		prev := current.(*readmodel.BatchReadModel)
		if version <= prev.Version {
			return prev
		}
		b := *prev
		b.Allocations = slices.Clone(prev.Allocations)
		fn(&b)
		allocated := 0
		for _, a := range b.Allocations {
			allocated += a.Qty
		}
		b.AllocatedQuantity = allocated
		b.AvailableQuantity = b.PurchasedQuantity - allocated
		b.Version = version
		applied = true
		return &b
	})
	if !found {
		p.logger.Warn("event for unknown batch", zap.String("reference", ref), zap.Int("version", version))
	}
	return applied
}

// addAllocation indexes alloc under its order and SKU. An order may hold
// several lines for one SKU as long as their quantities differ.
func (p *Projector) addAllocation(alloc readmodel.AllocationReadModel) {
	id := readmodel.AllocationID(alloc.OrderID, alloc.SKU)
	current, _ := p.readStore.Get(readmodel.CollectionAllocations, id)
	lines, _ := current.([]readmodel.AllocationReadModel)
	p.readStore.Set(readmodel.CollectionAllocations, id, append(slices.Clone(lines), alloc))
}

func (p *Projector) removeAllocation(e allocation.LineDeallocated) {
	id := readmodel.AllocationID(e.OrderID, e.SKU)
	current, ok := p.readStore.Get(readmodel.CollectionAllocations, id)
	if !ok {
		return
	}
	lines := slices.DeleteFunc(slices.Clone(current.([]readmodel.AllocationReadModel)), func(a readmodel.AllocationReadModel) bool {
		return a.Reference == e.Reference && a.Qty == e.Qty
	})
	if len(lines) == 0 {
		p.readStore.Delete(readmodel.CollectionAllocations, id)
		return
	}
	p.readStore.Set(readmodel.CollectionAllocations, id, lines)
}

// Publish lets the projector stand in for Kafka as the event store's
// publisher, projecting each event synchronously as it is appended.
func (p *Projector) Publish(_ context.Context, _ string, event any) error {
	e, ok := event.(store.Event)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	return p.Apply(e)
}
