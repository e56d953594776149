package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/example/allocation/internal/command"
	"github.com/example/allocation/internal/domain/allocation"
	"github.com/example/allocation/internal/query"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
	}
}

type batchResponse struct {
	Reference         string     `json:"reference"`
	SKU               string     `json:"sku"`
	PurchasedQuantity int        `json:"purchased_quantity"`
	AvailableQuantity int        `json:"available_quantity"`
	ETA               *time.Time `json:"eta,omitempty"`
}

type allocationResponse struct {
	BatchRef string `json:"batch_ref"`
}

// Batch Handlers

func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateBatch
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.cmdHandler.CreateBatch(r.Context(), cmd)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusCreated, batchResponse{
		Reference:         b.Reference,
		SKU:               b.SKU,
		PurchasedQuantity: b.PurchasedQuantity,
		AvailableQuantity: b.AvailableQuantity(),
		ETA:               b.ETA,
	})
}

func (h *Handlers) GetBatches(w http.ResponseWriter, r *http.Request) {
	batches := h.queryHandler.ListBatches(r.URL.Query().Get("sku"))
	respondJSON(w, http.StatusOK, batches)
}

func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	ref := extractPathParam(r.URL.Path, "/batches/")
	b, ok := h.queryHandler.GetBatch(ref)
	if !ok {
		respondError(w, "batch not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// Allocation Handlers

func (h *Handlers) Allocate(w http.ResponseWriter, r *http.Request) {
	var cmd command.Allocate
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ref, err := h.cmdHandler.Allocate(r.Context(), cmd)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusCreated, allocationResponse{BatchRef: ref})
}

func (h *Handlers) Deallocate(w http.ResponseWriter, r *http.Request) {
	var cmd command.Deallocate
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ref, err := h.cmdHandler.Deallocate(r.Context(), cmd)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, allocationResponse{BatchRef: ref})
}

// GetAllocation serves /allocations/{orderID}/{sku}
func (h *Handlers) GetAllocation(w http.ResponseWriter, r *http.Request) {
	orderID, sku, ok := strings.Cut(extractPathParam(r.URL.Path, "/allocations/"), "/")
	if !ok || orderID == "" || sku == "" {
		respondError(w, "expected /allocations/{order_id}/{sku}", http.StatusBadRequest)
		return
	}

	alloc, found := h.queryHandler.GetAllocation(orderID, sku)
	if !found {
		respondError(w, "allocation not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, alloc)
}

// Helper functions

func statusFor(err error) int {
	switch {
	case errors.Is(err, allocation.ErrOutOfStock),
		errors.Is(err, allocation.ErrBatchExists):
		return http.StatusConflict
	case errors.Is(err, allocation.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, allocation.ErrInvalidQuantity),
		errors.Is(err, allocation.ErrInvalidSKU),
		errors.Is(err, allocation.ErrInvalidOrderID),
		errors.Is(err, command.ErrInvalidETA):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
