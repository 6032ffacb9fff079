// Package repository implements the message store (C6): an idempotent
// upsert/query contract over ProcessedMessage records, backed by
// Postgres with a Redis read-through cache for point lookups.
package repository

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle stage of a ProcessedMessage (§3).
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusProcessed  Status = "Processed"
	StatusFailed     Status = "Failed"
	StatusDeadLetter Status = "DeadLetter"
	StatusArchived   Status = "Archived"
)

// ErrNotFound is returned by GetById/UpdateStatus when no record matches.
var ErrNotFound = errors.New("repository: record not found")

// ProcessedMessage is the persistent record for one pipeline run over a
// single input message (§3).
type ProcessedMessage struct {
	ID            string
	MessageType   string
	RawMessage    string
	ParsedMessage []byte // serialised SwiftMessage, nil when parsing failed
	Status        Status
	CreatedAt     time.Time
	ProcessedAt   time.Time
	ErrorDetails  string
	Metadata      map[string]string
}

// Filter narrows Query/Count results. Zero-value fields are unfiltered.
type Filter struct {
	Status      Status
	MessageType string
	FromDate    time.Time
	ToDate      time.Time
	Skip        int
	Take        int
}

// Repository is the C6 contract (§4.6). Save is an idempotent upsert by
// ID; everything else is read-oriented.
type Repository interface {
	Save(ctx context.Context, msg *ProcessedMessage) (string, error)
	GetById(ctx context.Context, id string) (*ProcessedMessage, error)
	Query(ctx context.Context, filter Filter) ([]*ProcessedMessage, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	Count(ctx context.Context, filter Filter) (int, error)
}
