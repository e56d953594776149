package allocation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/allocation/internal/domain/aggregate"
	"github.com/example/allocation/internal/infrastructure/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const AggregateType = "Batch"

// Service persists batches as event streams and runs allocations against
// them. Mutations are serialized with a single lock since a Batch must not be
// shared between concurrent writers.
type Service struct {
	mu         sync.Mutex
	eventStore store.EventStoreInterface
	logger     *zap.Logger
}

func NewService(es store.EventStoreInterface, logger *zap.Logger) *Service {
	return &Service{
		eventStore: es,
		logger:     logger.With(zap.String("component", "allocation")),
	}
}

// CreateBatch registers new stock. An empty ref gets a generated reference.
func (s *Service) CreateBatch(ctx context.Context, ref, sku string, qty int, eta *time.Time) (*Batch, error) {
	if sku == "" {
		return nil, ErrInvalidSKU
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if ref == "" {
		ref = "batch-" + uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, found, err := s.loadBatch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, fmt.Errorf("%w: %s", ErrBatchExists, ref)
	}

	event := BatchCreated{
		Reference: ref,
		SKU:       sku,
		Quantity:  qty,
		ETA:       eta,
		CreatedAt: time.Now(),
	}
	stored, err := s.eventStore.Append(ctx, ref, AggregateType, EventBatchCreated, event)
	if err != nil {
		return nil, err
	}

	b := NewBatch(ref, sku, qty, eta)
	if stored != nil {
		b.Version = stored.Version
	}

	s.logger.Info("batch created",
		zap.String("reference", ref),
		zap.String("sku", sku),
		zap.Int("quantity", qty),
		zap.Bool("in_transit", eta != nil),
	)
	return b, nil
}

// Allocate picks a batch for line among all batches of its SKU and records
// the allocation. A line that is already allocated returns the batch holding
// it without recording anything.
func (s *Service) Allocate(ctx context.Context, line OrderLine) (string, error) {
	if err := validateLine(line); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batches, err := s.loadBatches(ctx, line.SKU)
	if err != nil {
		return "", err
	}

	for _, b := range batches {
		if b.IsAllocated(line) {
			return b.Reference, nil
		}
	}

	ref, err := Allocate(line, batches)
	if err != nil {
		s.logger.Info("out of stock",
			zap.String("order_id", line.OrderID),
			zap.String("sku", line.SKU),
			zap.Int("qty", line.Qty),
			zap.Int("candidates", len(batches)),
		)
		return "", err
	}

	var chosen *Batch
	for _, b := range batches {
		if b.Reference == ref {
			chosen = b
			break
		}
	}

	event := LineAllocated{
		Reference:   ref,
		OrderID:     line.OrderID,
		SKU:         line.SKU,
		Qty:         line.Qty,
		AllocatedAt: time.Now(),
	}
	if err := s.record(ctx, chosen, EventLineAllocated, event); err != nil {
		return "", err
	}

	s.logger.Info("line allocated",
		zap.String("reference", ref),
		zap.String("order_id", line.OrderID),
		zap.String("sku", line.SKU),
		zap.Int("qty", line.Qty),
		zap.Int("available", chosen.AvailableQuantity()),
	)
	return ref, nil
}

// Deallocate releases line from whichever batch holds it and returns that
// batch's reference. It is a no-op returning "" when the line is not allocated.
func (s *Service) Deallocate(ctx context.Context, line OrderLine) (string, error) {
	if err := validateLine(line); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batches, err := s.loadBatches(ctx, line.SKU)
	if err != nil {
		return "", err
	}

	for _, b := range batches {
		if !b.IsAllocated(line) {
			continue
		}
		b.Deallocate(line)

		event := LineDeallocated{
			Reference:     b.Reference,
			OrderID:       line.OrderID,
			SKU:           line.SKU,
			Qty:           line.Qty,
			DeallocatedAt: time.Now(),
		}
		if err := s.record(ctx, b, EventLineDeallocated, event); err != nil {
			return "", err
		}

		s.logger.Info("line deallocated",
			zap.String("reference", b.Reference),
			zap.String("order_id", line.OrderID),
			zap.String("sku", line.SKU),
			zap.Int("qty", line.Qty),
		)
		return b.Reference, nil
	}

	return "", nil
}

func (s *Service) GetBatch(ctx context.Context, ref string) (*Batch, error) {
	b, found, err := s.loadBatch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, ref)
	}
	return b, nil
}

// ListBatches returns the batches of sku in creation order, or every batch
// when sku is empty.
func (s *Service) ListBatches(ctx context.Context, sku string) ([]*Batch, error) {
	return s.loadBatches(ctx, sku)
}

func (s *Service) loadBatch(ctx context.Context, ref string) (*Batch, bool, error) {
	return aggregate.LoadAggregate(ctx, s.eventStore, ref, func() *Batch {
		return &Batch{allocations: make(map[OrderLine]struct{})}
	})
}

func (s *Service) loadBatches(ctx context.Context, sku string) ([]*Batch, error) {
	events, err := s.eventStore.GetEventsByType(ctx, AggregateType)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	var batches []*Batch
	for _, event := range events {
		if event.EventType != EventBatchCreated {
			continue
		}
		var created BatchCreated
		if err := json.Unmarshal(event.Data, &created); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", event.ID, err)
		}
		if sku != "" && created.SKU != sku {
			continue
		}

		b, _, err := s.loadBatch(ctx, event.AggregateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load batch %s: %w", event.AggregateID, err)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// record appends an event for a batch whose in-memory state already reflects it
func (s *Service) record(ctx context.Context, b *Batch, eventType string, data any) error {
	stored, err := s.eventStore.Append(ctx, b.Reference, AggregateType, eventType, data)
	if err != nil {
		return err
	}
	if stored != nil {
		b.Version = stored.Version
	}

	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, b, AggregateType); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("reference", b.Reference), zap.Error(err))
	}
	return nil
}

func validateLine(line OrderLine) error {
	if line.OrderID == "" {
		return ErrInvalidOrderID
	}
	if line.SKU == "" {
		return ErrInvalidSKU
	}
	if line.Qty <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
