package publish

import "fmt"

// The upload workflow distinguishes four failure kinds. Validation failures
// are *manifest.ValidationError values passed through unchanged; the types
// below cover the later stages. Any failure before the persist stage leaves
// the durable record exactly as it was, so callers may retry the whole upload
// without cleanup.

// CollisionError means the destination path was already occupied. It
// indicates the upload should never have been attempted (the same declared
// version was already published for this identity) and is never resolved by
// overwriting.
type CollisionError struct {
	Path string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("publish: destination already occupied: %s", e.Path)
}

// SigningError means the signer rejected the archive or failed internally.
// No file remains at the destination path when it is returned.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("publish: signing failed: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// WriteError means storage placement failed after signing succeeded. Partial
// files are cleaned up before it is returned.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("publish: write failed at %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
