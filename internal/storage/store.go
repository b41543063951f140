// Package storage persists markers.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/marker-map/backend/internal/models"
)

// MarkerStore defines the interface for marker persistence.
type MarkerStore interface {
	// Create stores a draft and returns the persisted marker. It fails with
	// a *DuplicateKeyError when a marker already occupies the position.
	Create(ctx context.Context, draft models.Draft) (*models.Marker, error)
	// ListAll returns every marker, most recent first.
	ListAll(ctx context.Context) ([]*models.Marker, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrDuplicateKey matches any *DuplicateKeyError via errors.Is.
var ErrDuplicateKey = errors.New("duplicate key")

// DuplicateKeyError reports a create rejected by the position uniqueness
// constraint. Nothing was written.
type DuplicateKeyError struct {
	Position models.Position
	Err      error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("marker already exists at (%g, %g)", e.Position.Lat, e.Position.Lng)
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// StoreError wraps an I/O failure from the underlying database.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
