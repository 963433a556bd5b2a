// Package minifest builds and caches the "mini-manifest": the lightweight
// descriptor downstream clients fetch to discover the latest signed pack.
package minifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/packforge/packd/pkg/langpack"
)

// ErrNotAvailable is returned for inactive packs: the descriptor endpoint
// must not resolve to content at all.
var ErrNotAvailable = errors.New("minifest: pack is not active")

// Document is the derived mini-manifest.
type Document struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Role        string            `json:"role"`
	Developer   map[string]any    `json:"developer,omitempty"`
	Locales     map[string]string `json:"locales,omitempty"`
	PackagePath string            `json:"package_path"`
}

// Builder derives minifest documents from pack state.
type Builder struct {
	baseURL string
}

func NewBuilder(baseURL string) *Builder {
	return &Builder{baseURL: baseURL}
}

// Build renders the minifest for a pack and its integrity tag. The tag is the
// SHA-256 of the serialized document: any published change to the pack yields
// a different tag, which is what conditional re-fetch relies on.
func (b *Builder) Build(pack *langpack.LangPack) ([]byte, string, error) {
	full, err := pack.ManifestJSON()
	if err != nil {
		return nil, "", fmt.Errorf("minifest: %w", err)
	}

	doc := Document{
		Version:     pack.Version,
		Role:        "langpack",
		PackagePath: pack.DownloadURL(b.baseURL),
	}
	if name, ok := full["name"].(string); ok {
		doc.Name = name
	}
	if dev, ok := full["developer"].(map[string]any); ok {
		doc.Developer = dev
	}
	if provided, ok := full["languages-provided"].(map[string]any); ok {
		doc.Locales = make(map[string]string, len(provided))
		for code, entry := range provided {
			if m, ok := entry.(map[string]any); ok {
				if name, ok := m["name"].(string); ok {
					doc.Locales[code] = name
					continue
				}
			}
			doc.Locales[code] = code
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, "", fmt.Errorf("minifest: marshal: %w", err)
	}
	return data, ETag(data), nil
}

// ETag computes the integrity tag for a serialized minifest.
func ETag(doc []byte) string {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}
