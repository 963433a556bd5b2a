// Package langpack defines the language pack entity and its durable stores.
package langpack

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LangPack is one logical language pack across all of its published versions.
//
// UUID is the stable public identity: once a file has been placed under a path
// derived from it, it must never change. FileVersion counts successful uploads
// and is bumped exactly once per publication; it is never settable by callers.
type LangPack struct {
	UUID string `json:"uuid"`

	// Fields for which the manifest is the source of truth. They are only
	// replaced together, via ApplyManifest + Store.Publish.
	Locale          string          `json:"locale"`
	PlatformVersion string          `json:"platform_version"`
	Version         string          `json:"version"`
	Manifest        json.RawMessage `json:"manifest,omitempty"`

	FileVersion int64 `json:"file_version"`

	// Active gates the minifest and download endpoints. It is the only field
	// editable through the API.
	Active bool `json:"active"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NewUUID returns a fresh pack identity: a v4 uuid in compact hex form
// (no dashes), suitable for filenames and URLs.
func NewUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// EnsureUUID allocates an identity if the pack has none. Idempotent.
func (lp *LangPack) EnsureUUID() string {
	if lp.UUID == "" {
		lp.UUID = NewUUID()
	}
	return lp.UUID
}

// ResetUUID discards the current identity and allocates a fresh one.
//
// Callers must only do this before any file has been placed for the pack;
// files published under the old identity become unreachable otherwise.
func (lp *LangPack) ResetUUID() string {
	lp.UUID = NewUUID()
	return lp.UUID
}

// Filename is "{uuid}-{version}.zip". The declared version is part of the name
// so an older file keeps serving while a newer version is being published.
func (lp *LangPack) Filename() string {
	return fmt.Sprintf("%s-%s.zip", lp.UUID, lp.Version)
}

// StoragePath is the canonical location of the signed archive. It is a pure
// function of (identity, declared version); the orchestrator relies on that to
// detect collisions before writing.
func (lp *LangPack) StoragePath() string {
	return StoragePath(lp.UUID, lp.Version)
}

// StoragePath computes the canonical storage path for an identity and a
// declared version string.
func StoragePath(uuid, version string) string {
	return path.Join("langpacks", uuid, fmt.Sprintf("%s-%s.zip", uuid, version))
}

// DownloadURL is the stable public reference for the pack. It is derived from
// the identity only, so it resolves to the latest published file regardless of
// how many versions exist.
func (lp *LangPack) DownloadURL(base string) string {
	return fmt.Sprintf("%s/downloads/%s/langpack.zip", strings.TrimRight(base, "/"), lp.UUID)
}

// MinifestURL returns the minifest endpoint URL, or "" when the pack is
// inactive.
func (lp *LangPack) MinifestURL(base string) string {
	if !lp.Active {
		return ""
	}
	return fmt.Sprintf("%s/langpacks/%s/manifest.webapp", strings.TrimRight(base, "/"), lp.UUID)
}

// ApplyManifest replaces the manifest-sourced fields as one unit. This is the
// only way those fields change; nothing merges individual keys.
func (lp *LangPack) ApplyManifest(locale, platformVersion, version string, manifest json.RawMessage) {
	lp.Locale = locale
	lp.PlatformVersion = platformVersion
	lp.Version = version
	lp.Manifest = append(json.RawMessage(nil), manifest...)
}

// ManifestJSON decodes the stored manifest document.
func (lp *LangPack) ManifestJSON() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(lp.Manifest, &m); err != nil {
		return nil, fmt.Errorf("decode stored manifest: %w", err)
	}
	return m, nil
}

// Clone returns a deep copy, used by the orchestrator to stage mutations
// without touching the record observers see.
func (lp *LangPack) Clone() *LangPack {
	out := *lp
	out.Manifest = append(json.RawMessage(nil), lp.Manifest...)
	return &out
}
