package langpack

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no pack exists for the given identity.
	ErrNotFound = errors.New("langpack: not found")
	// ErrStale is returned by Publish when the conditional version check
	// fails: another upload committed first.
	ErrStale = errors.New("langpack: file version changed concurrently")
)

// ListFilter narrows List results. Zero value matches everything.
type ListFilter struct {
	Locale     string
	ActiveOnly bool
}

// Store is the durable entity store for language packs.
//
// Publish is the single write path for upload results: it commits the
// manifest-sourced fields, the manifest blob, the identity and the bumped
// FileVersion in one atomic update, conditional on the pack's FileVersion
// still being expectedFileVersion. Two racing uploads for the same identity
// cannot both succeed; the loser gets ErrStale.
type Store interface {
	Get(ctx context.Context, uuid string) (*LangPack, error)
	List(ctx context.Context, filter ListFilter) ([]*LangPack, error)

	// Publish inserts the pack when expectedFileVersion is 0 and no record
	// exists yet, otherwise updates the existing record iff its stored
	// file_version equals expectedFileVersion.
	Publish(ctx context.Context, pack *LangPack, expectedFileVersion int64) error

	// SetActive flips the active flag only. It never touches FileVersion,
	// the manifest fields, or stored files.
	SetActive(ctx context.Context, uuid string, active bool) error

	// Delete removes the record. Stored file cleanup is the caller's
	// responsibility (the API layer reacts to deletion).
	Delete(ctx context.Context, uuid string) error
}
