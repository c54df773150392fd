// Package lockstore provides named storage for resolved lockfiles.
//
// The server exposes lockfiles under stable names ("frontend", "api")
// so CI jobs and developers share one pinned resolution. Two backends
// implement the Store interface:
//   - memory: In-memory storage for development/testing
//   - mongo: MongoDB-backed storage for production deployments
//
// # Usage
//
// Create a store:
//
//	// Development
//	store := lockstore.NewMemoryStore()
//
//	// Production
//	store, err := lockstore.NewMongoStore(ctx, "mongodb://localhost:27017", "depstack")
//
// Store and retrieve lockfiles:
//
//	rec, err := store.Put(ctx, "frontend", lockfileBytes)
//	rec, err = store.Get(ctx, "frontend")
//	if rec == nil {
//	    // No lockfile under that name
//	}
package lockstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/npm/snapshot"
)

// Record is one stored lockfile.
type Record struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Lockfile  []byte    `json:"lockfile" bson:"lockfile"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Store is the interface for lockfile storage backends.
type Store interface {
	// Get retrieves a lockfile by name.
	// Returns nil, nil if no lockfile is stored under that name.
	Get(ctx context.Context, name string) (*Record, error)

	// Put stores a lockfile under a name, replacing any previous
	// contents. The record id and creation time survive replacement.
	Put(ctx context.Context, name string, lockfile []byte) (*Record, error)

	// Delete removes a stored lockfile. Deleting a missing name is not
	// an error.
	Delete(ctx context.Context, name string) error

	// List returns the stored names in sorted order.
	List(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// newRecord validates the lockfile and builds the record to store.
// Rejecting malformed lockfiles at write time means every Get returns
// parseable data.
func newRecord(name string, lockfile []byte, previous *Record) (*Record, error) {
	if name == "" {
		return nil, errors.New(errors.ErrCodeInvalidLockfile, "lockfile name must not be empty")
	}
	if _, err := snapshot.ParseLockfile(lockfile); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		Name:      name,
		Lockfile:  lockfile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if previous != nil {
		rec.ID = previous.ID
		rec.CreatedAt = previous.CreatedAt
	}
	return rec, nil
}
