// Package models defines the data types shared across the Tower search subsystem.
package models

import "time"

// VectorRecord is one stored embedding. FileID is owned by the external
// file-metadata service; Tower never mints or reassigns it. Records are
// created on insert and destroyed on delete, never mutated in place.
type VectorRecord struct {
	FileID    int64
	Embedding []float32
	CreatedAt time.Time
}

// StoreStats reports the state of the vector record store.
type StoreStats struct {
	RecordCount int64 `json:"record_count"`
}
