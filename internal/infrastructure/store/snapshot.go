package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotThreshold is the number of events between two snapshots of an aggregate
const SnapshotThreshold = 10

// Snapshot represents a point-in-time state of an aggregate
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"` // version of the last event folded into State
	State         json.RawMessage `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewSnapshot serializes state into a snapshot taken at version
func NewSnapshot(aggregateID, aggregateType string, version int, state any) (*Snapshot, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s state: %w", aggregateType, err)
	}
	return &Snapshot{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		State:         data,
		CreatedAt:     time.Now(),
	}, nil
}

// Due reports whether an aggregate at version should be snapshotted
func Due(version int) bool {
	return version > 0 && version%SnapshotThreshold == 0
}
