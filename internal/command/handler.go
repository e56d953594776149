package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/allocation/internal/domain/allocation"
)

// DateLayout is the wire format of batch ETAs
const DateLayout = "2006-01-02"

var ErrInvalidETA = errors.New("eta must be a YYYY-MM-DD date")

type Handler struct {
	allocationSvc *allocation.Service
}

func NewHandler(allocationSvc *allocation.Service) *Handler {
	return &Handler{allocationSvc: allocationSvc}
}

func (h *Handler) CreateBatch(ctx context.Context, cmd CreateBatch) (*allocation.Batch, error) {
	var eta *time.Time
	if cmd.ETA != "" {
		t, err := time.Parse(DateLayout, cmd.ETA)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidETA, cmd.ETA)
		}
		eta = &t
	}
	return h.allocationSvc.CreateBatch(ctx, cmd.Reference, cmd.SKU, cmd.Quantity, eta)
}

// Allocate returns the reference of the batch the line was allocated to
func (h *Handler) Allocate(ctx context.Context, cmd Allocate) (string, error) {
	return h.allocationSvc.Allocate(ctx, allocation.OrderLine{
		OrderID: cmd.OrderID,
		SKU:     cmd.SKU,
		Qty:     cmd.Qty,
	})
}

// Deallocate returns the reference of the batch the line was released from,
// or "" if it was not allocated
func (h *Handler) Deallocate(ctx context.Context, cmd Deallocate) (string, error) {
	return h.allocationSvc.Deallocate(ctx, allocation.OrderLine{
		OrderID: cmd.OrderID,
		SKU:     cmd.SKU,
		Qty:     cmd.Qty,
	})
}
