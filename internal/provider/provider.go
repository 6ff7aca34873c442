// Package provider defines the narrow contract the retention engine consumes
// from the platform's resource stores. The engine never mutates resources
// except through Delete and SetStatus.
package provider

import (
	"context"
	"time"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

// Provider yields point-in-time resource snapshots and applies the two
// mutations the engine is allowed to perform. Implementations must be safe
// for concurrent use; the engine serializes per rule, not per provider.
type Provider interface {
	// Snapshot returns every descriptor of the given type that existed at
	// asOf. The returned slice is owned by the caller.
	Snapshot(ctx context.Context, resourceType model.ResourceType, asOf time.Time) ([]model.ResourceDescriptor, error)

	// Content returns the payload bytes used for archive and export.
	Content(ctx context.Context, resourceType model.ResourceType, resourceID string) ([]byte, error)

	// Delete irreversibly removes a resource. Deleting an absent resource
	// returns model.ErrResourceNotFound, which callers treat as a no-op.
	Delete(ctx context.Context, resourceType model.ResourceType, resourceID string) error

	// SetStatus updates a resource's status field (e.g. "archived"). The
	// resource stays enumerable in later snapshots.
	SetStatus(ctx context.Context, resourceType model.ResourceType, resourceID string, status string) error
}

// StatusArchived is the status written by the archive action.
const StatusArchived = "archived"
