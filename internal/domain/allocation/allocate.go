package allocation

import "slices"

// Allocate commits line to the best batch that can take it and returns that
// batch's reference. Warehouse stock is preferred over shipments and earlier
// shipments over later ones; ties keep the order of batches. When no batch
// can take the line an *OutOfStockError is returned and nothing changes.
//
// The batches slice itself is not reordered.
func Allocate(line OrderLine, batches []*Batch) (string, error) {
	eligible := make([]*Batch, 0, len(batches))
	for _, b := range batches {
		if b != nil && b.CanAllocate(line) {
			eligible = append(eligible, b)
		}
	}
	if len(eligible) == 0 {
		return "", &OutOfStockError{SKU: line.SKU}
	}

	slices.SortStableFunc(eligible, ComparePriority)

	chosen := eligible[0]
	chosen.Allocate(line)
	return chosen.Reference, nil
}

// AllocateTo allocates line to a single batch and returns its reference.
// Unlike Allocate it does not report a failure: if the batch cannot take the
// line it is left unchanged, so callers check CanAllocate first when they
// need to know.
func AllocateTo(line OrderLine, batch *Batch) string {
	batch.Allocate(line)
	return batch.Reference
}
