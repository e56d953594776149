package query

import (
	"slices"

	"github.com/example/allocation/internal/infrastructure/store"
	"github.com/example/allocation/internal/readmodel"
)

type Handler struct {
	readStore store.ReadStoreInterface
}

func NewHandler(readStore store.ReadStoreInterface) *Handler {
	return &Handler{readStore: readStore}
}

func (h *Handler) GetBatch(ref string) (*readmodel.BatchReadModel, bool) {
	data, ok := h.readStore.Get(readmodel.CollectionBatches, ref)
	if !ok {
		return nil, false
	}
	return data.(*readmodel.BatchReadModel), true
}

// ListBatches returns batches ordered by reference, filtered by sku unless it is empty
func (h *Handler) ListBatches(sku string) []*readmodel.BatchReadModel {
	items := h.readStore.GetAll(readmodel.CollectionBatches)
	batches := make([]*readmodel.BatchReadModel, 0, len(items))
	for _, item := range items {
		b := item.(*readmodel.BatchReadModel)
		if sku != "" && b.SKU != sku {
			continue
		}
		batches = append(batches, b)
	}
	return batches
}

// GetAllocation returns where the order's lines for sku were allocated
func (h *Handler) GetAllocation(orderID, sku string) ([]readmodel.AllocationReadModel, bool) {
	data, ok := h.readStore.Get(readmodel.CollectionAllocations, readmodel.AllocationID(orderID, sku))
	if !ok {
		return nil, false
	}
	return slices.Clone(data.([]readmodel.AllocationReadModel)), true
}
