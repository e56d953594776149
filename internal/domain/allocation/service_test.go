package allocation

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/example/allocation/internal/infrastructure/store"
	"github.com/example/allocation/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	return NewService(eventStore, zap.NewNop()), eventStore
}

// ============================================
// Create Batch Tests
// ============================================

func TestService_CreateBatch_Success(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()
	eta := today().AddDate(0, 0, 3)

	b, err := service.CreateBatch(ctx, "batch-001", "RED-CHAIR", 20, &eta)

	require.NoError(t, err)
	assert.Equal(t, "batch-001", b.Reference)
	assert.Equal(t, 20, b.AvailableQuantity())
	assert.Equal(t, 1, b.Version)

	require.Len(t, eventStore.AppendCalls, 1)
	call := eventStore.AppendCalls[0]
	assert.Equal(t, "batch-001", call.AggregateID)
	assert.Equal(t, AggregateType, call.AggregateType)
	assert.Equal(t, EventBatchCreated, call.EventType)

	data := call.Data.(BatchCreated)
	assert.Equal(t, "RED-CHAIR", data.SKU)
	assert.Equal(t, 20, data.Quantity)
	assert.Equal(t, &eta, data.ETA)
}

func TestService_CreateBatch_GeneratesReference(t *testing.T) {
	service, _ := newTestService()

	b, err := service.CreateBatch(context.Background(), "", "RED-CHAIR", 5, nil)

	require.NoError(t, err)
	assert.Regexp(t, `^batch-[0-9a-f-]{36}$`, b.Reference)
}

func TestService_CreateBatch_Validation(t *testing.T) {
	tests := []struct {
		name    string
		sku     string
		qty     int
		wantErr error
	}{
		{"empty sku", "", 10, ErrInvalidSKU},
		{"zero quantity", "LAMP", 0, ErrInvalidQuantity},
		{"negative quantity", "LAMP", -3, ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, eventStore := newTestService()

			_, err := service.CreateBatch(context.Background(), "batch-001", tt.sku, tt.qty, nil)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, eventStore.AppendCalls)
		})
	}
}

func TestService_CreateBatch_Duplicate(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()

	_, err := service.CreateBatch(ctx, "batch-001", "LAMP", 10, nil)
	require.NoError(t, err)

	_, err = service.CreateBatch(ctx, "batch-001", "LAMP", 99, nil)

	assert.ErrorIs(t, err, ErrBatchExists)
	assert.Len(t, eventStore.AppendCalls, 1)
}

func TestService_CreateBatch_AppendError(t *testing.T) {
	service, eventStore := newTestService()
	eventStore.AppendErr = errors.New("db down")

	_, err := service.CreateBatch(context.Background(), "batch-001", "LAMP", 10, nil)

	assert.EqualError(t, err, "db down")
}

// ============================================
// Allocate Tests
// ============================================

func TestService_Allocate_PrefersWarehouseStock(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()
	tomorrow := today().AddDate(0, 0, 1)

	_, err := service.CreateBatch(ctx, "B2", "CHAIR", 10, &tomorrow)
	require.NoError(t, err)
	_, err = service.CreateBatch(ctx, "B1", "CHAIR", 10, nil)
	require.NoError(t, err)

	ref, err := service.Allocate(ctx, OrderLine{OrderID: "order-1", SKU: "CHAIR", Qty: 2})

	require.NoError(t, err)
	assert.Equal(t, "B1", ref)

	last := eventStore.AppendCalls[len(eventStore.AppendCalls)-1]
	assert.Equal(t, EventLineAllocated, last.EventType)
	assert.Equal(t, "B1", last.AggregateID)

	b1, err := service.GetBatch(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, 8, b1.AvailableQuantity())

	b2, err := service.GetBatch(ctx, "B2")
	require.NoError(t, err)
	assert.Equal(t, 10, b2.AvailableQuantity())
}

func TestService_Allocate_IgnoresOtherSKUs(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	_, err := service.CreateBatch(ctx, "tables", "TABLE", 100, nil)
	require.NoError(t, err)
	_, err = service.CreateBatch(ctx, "lamps", "LAMP", 5, nil)
	require.NoError(t, err)

	ref, err := service.Allocate(ctx, OrderLine{OrderID: "order-1", SKU: "LAMP", Qty: 5})

	require.NoError(t, err)
	assert.Equal(t, "lamps", ref)
}

func TestService_Allocate_IsIdempotent(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()

	_, err := service.CreateBatch(ctx, "B1", "CHAIR", 10, nil)
	require.NoError(t, err)
	_, err = service.CreateBatch(ctx, "B2", "CHAIR", 10, nil)
	require.NoError(t, err)

	line := OrderLine{OrderID: "order-1", SKU: "CHAIR", Qty: 2}
	first, err := service.Allocate(ctx, line)
	require.NoError(t, err)
	second, err := service.Allocate(ctx, line)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, eventStore.AppendCalls, 3)

	b, err := service.GetBatch(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 8, b.AvailableQuantity())
}

func TestService_Allocate_OutOfStock(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()

	_, err := service.CreateBatch(ctx, "batch1", "CHAIR", 10, nil)
	require.NoError(t, err)

	_, err = service.Allocate(ctx, OrderLine{OrderID: "order-1", SKU: "CHAIR", Qty: 10})
	require.NoError(t, err)

	_, err = service.Allocate(ctx, OrderLine{OrderID: "order-2", SKU: "CHAIR", Qty: 2})

	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Contains(t, err.Error(), "CHAIR")
	assert.Len(t, eventStore.AppendCalls, 2)
}

func TestService_Allocate_UnknownSKU(t *testing.T) {
	service, _ := newTestService()

	_, err := service.Allocate(context.Background(), OrderLine{OrderID: "order-1", SKU: "NOPE", Qty: 1})

	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestService_Allocate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		line    OrderLine
		wantErr error
	}{
		{"missing order id", OrderLine{SKU: "LAMP", Qty: 1}, ErrInvalidOrderID},
		{"missing sku", OrderLine{OrderID: "o1", Qty: 1}, ErrInvalidSKU},
		{"zero qty", OrderLine{OrderID: "o1", SKU: "LAMP"}, ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, eventStore := newTestService()

			_, err := service.Allocate(context.Background(), tt.line)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, eventStore.AppendCalls)
		})
	}
}

func TestService_Allocate_AppendError(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()

	_, err := service.CreateBatch(ctx, "B1", "CHAIR", 10, nil)
	require.NoError(t, err)
	eventStore.AppendErr = errors.New("db down")

	_, err = service.Allocate(ctx, OrderLine{OrderID: "order-1", SKU: "CHAIR", Qty: 1})

	assert.EqualError(t, err, "db down")
}

func TestService_Allocate_StoreReadErrorIsNotOutOfStock(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()

	_, err := service.CreateBatch(ctx, "B1", "CHAIR", 10, nil)
	require.NoError(t, err)
	eventStore.GetEventsErr = errors.New("connection refused")

	ref, err := service.Allocate(ctx, OrderLine{OrderID: "order-1", SKU: "CHAIR", Qty: 1})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOutOfStock)
	assert.ErrorContains(t, err, "connection refused")
	assert.Empty(t, ref)
	assert.Len(t, eventStore.AppendCalls, 1)
}

func TestService_Allocate_DatabaseUnavailable(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://allocation@localhost/allocation?sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.Close())
	service := NewService(store.NewPostgresEventStore(db, nil, zap.NewNop()), zap.NewNop())

	_, err = service.Allocate(context.Background(), OrderLine{OrderID: "order-1", SKU: "CHAIR", Qty: 1})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOutOfStock)
	var outOfStock *OutOfStockError
	assert.False(t, errors.As(err, &outOfStock))
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) error {
	return errors.New("broker unavailable")
}

func TestService_Allocate_PublishFailureKeepsAllocation(t *testing.T) {
	service := NewService(store.NewEventStore(failingPublisher{}, zap.NewNop()), zap.NewNop())
	ctx := context.Background()
	line := OrderLine{OrderID: "order-1", SKU: "CHAIR", Qty: 4}

	_, err := service.CreateBatch(ctx, "B1", "CHAIR", 10, nil)
	require.NoError(t, err)

	ref, err := service.Allocate(ctx, line)

	require.NoError(t, err)
	assert.Equal(t, "B1", ref)

	b, err := service.GetBatch(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Version)
	assert.Equal(t, 6, b.AvailableQuantity())
	assert.True(t, b.IsAllocated(line))

	ref, err = service.Deallocate(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, "B1", ref)
}

// ============================================
// Deallocate Tests
// ============================================

func TestService_Deallocate_RestoresStock(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()
	line := OrderLine{OrderID: "order-1", SKU: "CHAIR", Qty: 4}

	_, err := service.CreateBatch(ctx, "B1", "CHAIR", 10, nil)
	require.NoError(t, err)
	_, err = service.Allocate(ctx, line)
	require.NoError(t, err)

	ref, err := service.Deallocate(ctx, line)

	require.NoError(t, err)
	assert.Equal(t, "B1", ref)
	last := eventStore.AppendCalls[len(eventStore.AppendCalls)-1]
	assert.Equal(t, EventLineDeallocated, last.EventType)

	b, err := service.GetBatch(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, 10, b.AvailableQuantity())
}

func TestService_Deallocate_UnallocatedIsNoOp(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()

	_, err := service.CreateBatch(ctx, "B1", "CHAIR", 10, nil)
	require.NoError(t, err)

	ref, err := service.Deallocate(ctx, OrderLine{OrderID: "order-1", SKU: "CHAIR", Qty: 4})

	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Len(t, eventStore.AppendCalls, 1)
}

// ============================================
// Query Tests
// ============================================

func TestService_GetBatch_NotFound(t *testing.T) {
	service, _ := newTestService()

	_, err := service.GetBatch(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestService_GetBatch_StoreReadError(t *testing.T) {
	service, eventStore := newTestService()
	eventStore.GetEventsErr = errors.New("timeout")

	_, err := service.GetBatch(context.Background(), "B1")

	assert.ErrorContains(t, err, "timeout")
	assert.NotErrorIs(t, err, ErrBatchNotFound)
}

func TestService_Deallocate_StoreReadError(t *testing.T) {
	service, eventStore := newTestService()
	eventStore.GetEventsErr = errors.New("timeout")

	_, err := service.Deallocate(context.Background(), OrderLine{OrderID: "o1", SKU: "LAMP", Qty: 1})

	assert.ErrorContains(t, err, "timeout")
	assert.Empty(t, eventStore.AppendCalls)
}

func TestService_ListBatches(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	for _, b := range []struct{ ref, sku string }{
		{"b3", "LAMP"}, {"b1", "TABLE"}, {"b2", "LAMP"},
	} {
		_, err := service.CreateBatch(ctx, b.ref, b.sku, 10, nil)
		require.NoError(t, err)
	}

	lamps, err := service.ListBatches(ctx, "LAMP")
	require.NoError(t, err)
	require.Len(t, lamps, 2)
	assert.Equal(t, "b3", lamps[0].Reference)
	assert.Equal(t, "b2", lamps[1].Reference)

	all, err := service.ListBatches(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// ============================================
// Snapshot Tests
// ============================================

func TestService_SnapshotCreatedAtThreshold(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()

	_, err := service.CreateBatch(ctx, "B1", "CHAIR", 100, nil)
	require.NoError(t, err)

	// 9 allocations take the batch to version 10
	for i := 0; i < 9; i++ {
		_, err := service.Allocate(ctx, OrderLine{OrderID: string(rune('a' + i)), SKU: "CHAIR", Qty: 1})
		require.NoError(t, err)
	}

	require.Len(t, eventStore.SaveSnapshotCalls, 1)
	snapshot := eventStore.SaveSnapshotCalls[0].Snapshot
	assert.Equal(t, "B1", snapshot.AggregateID)
	assert.Equal(t, AggregateType, snapshot.AggregateType)
	assert.Equal(t, 10, snapshot.Version)

	b, err := service.GetBatch(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, 91, b.AvailableQuantity())
	assert.Equal(t, 10, b.Version)
}

func TestService_SnapshotFailureDoesNotFailAllocation(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()
	eventStore.SaveSnapshotErr = errors.New("snapshot table missing")

	_, err := service.CreateBatch(ctx, "B1", "CHAIR", 100, nil)
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		_, err := service.Allocate(ctx, OrderLine{OrderID: string(rune('a' + i)), SKU: "CHAIR", Qty: 1})
		require.NoError(t, err)
	}

	assert.Len(t, eventStore.SaveSnapshotCalls, 1)
}

func TestService_LoadsFromSnapshotAndLaterEvents(t *testing.T) {
	service, eventStore := newTestService()
	ctx := context.Background()

	snapBatch := NewBatch("B1", "CHAIR", 50, nil)
	snapBatch.Allocate(OrderLine{OrderID: "old", SKU: "CHAIR", Qty: 20})
	snapBatch.Version = 1
	snapshot, err := store.NewSnapshot("B1", AggregateType, 1, snapBatch)
	require.NoError(t, err)

	require.NoError(t, eventStore.AddEvent("B1", AggregateType, EventBatchCreated,
		BatchCreated{Reference: "B1", SKU: "CHAIR", Quantity: 50}))
	require.NoError(t, eventStore.AddEvent("B1", AggregateType, EventLineAllocated,
		LineAllocated{Reference: "B1", OrderID: "new", SKU: "CHAIR", Qty: 5}))
	eventStore.SetSnapshot(snapshot)

	b, err := service.GetBatch(ctx, "B1")

	require.NoError(t, err)
	assert.Equal(t, 25, b.AvailableQuantity())
	assert.Equal(t, 2, b.Version)
	assert.True(t, b.IsAllocated(OrderLine{OrderID: "old", SKU: "CHAIR", Qty: 20}))
}

func TestService_WorksWithInMemoryStore(t *testing.T) {
	service := NewService(store.NewEventStore(nil, zap.NewNop()), zap.NewNop())
	ctx := context.Background()
	inTwoDays := today().AddDate(0, 0, 2)
	tomorrow := today().AddDate(0, 0, 1)

	_, err := service.CreateBatch(ctx, "B1", "SPOON", 10, &inTwoDays)
	require.NoError(t, err)
	_, err = service.CreateBatch(ctx, "B2", "SPOON", 10, &tomorrow)
	require.NoError(t, err)

	ref, err := service.Allocate(ctx, OrderLine{OrderID: "o1", SKU: "SPOON", Qty: 3})

	require.NoError(t, err)
	assert.Equal(t, "B2", ref)
}
