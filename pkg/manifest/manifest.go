// Package manifest extracts and validates the manifest embedded in uploaded
// language-pack archives.
//
// Parsing is strictly side-effect free: a failure at any point leaves the
// entity store and the file store untouched, so the publication orchestrator
// runs it before allocating an identity or bumping a version.
package manifest

import (
	"encoding/json"
	"fmt"
)

// ManifestFilename is the well-known archive member holding the manifest.
const ManifestFilename = "manifest.webapp"

const (
	// MaxPackageSize caps uploaded archives.
	MaxPackageSize = 50 * 1024 * 1024
	// MaxManifestSize caps the manifest member inside the archive.
	MaxManifestSize = 2 * 1024 * 1024
)

// Data is the structured result of a successful parse. Raw holds the full
// manifest document; the scalar fields are the whitelist the entity accepts.
type Data struct {
	Locale          string
	PlatformVersion string
	Version         string
	Raw             json.RawMessage
}

// ValidationError reports a malformed upload or manifest. The upload workflow
// aborts with no side effects when it sees one.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("manifest: %s", e.Msg)
	}
	return fmt.Sprintf("manifest: %s: %s", e.Field, e.Msg)
}

func validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
