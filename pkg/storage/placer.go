package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrCollision means the destination path is already occupied. A collision is
// a logic error upstream (re-publishing a version that already exists), never
// something to resolve by overwriting.
var ErrCollision = errors.New("storage: destination path already exists")

// Placer performs collision-checked placement of signed archives.
//
// The existence check and the write are not atomic across processes; callers
// serialize uploads per identity so two racers cannot both pass the check.
type Placer struct {
	store Store
}

func NewPlacer(store Store) *Placer {
	return &Placer{store: store}
}

// Exists reports whether the destination path is occupied.
func (p *Placer) Exists(ctx context.Context, path string) (bool, error) {
	return p.store.Exists(ctx, path)
}

// Place writes data to path after verifying the destination is free. On a
// write failure any partial file is removed, leaving storage as it was
// before the attempt.
func (p *Placer) Place(ctx context.Context, path string, data []byte) error {
	occupied, err := p.store.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("existence check for %s: %w", path, err)
	}
	if occupied {
		return fmt.Errorf("%w: %s", ErrCollision, path)
	}

	if err := p.store.Write(ctx, path, data); err != nil {
		_ = p.store.Delete(ctx, path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Remove deletes the file at path. Used as compensating cleanup when a later
// pipeline stage fails; deleting an absent file is not an error.
func (p *Placer) Remove(ctx context.Context, path string) error {
	return p.store.Delete(ctx, path)
}
