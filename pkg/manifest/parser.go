package manifest

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/language"

	"github.com/packforge/packd/pkg/langpack"
)

// Parser validates uploaded langpack archives and extracts the manifest
// fields the entity cares about.
type Parser struct {
	schema *jsonschema.Schema
}

// NewParser compiles the manifest schema.
func NewParser() (*Parser, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("langpack-manifest.json", strings.NewReader(manifestSchema)); err != nil {
		return nil, fmt.Errorf("add manifest schema: %w", err)
	}
	schema, err := c.Compile("langpack-manifest.json")
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return &Parser{schema: schema}, nil
}

// Parse reads the uploaded blob once, validates it as a langpack archive, and
// returns the extracted fields. existing, when non-nil, is the pack this
// upload targets; the manifest locale must then match the pack's locale.
//
// Any returned error is a *ValidationError; the caller can treat it as a
// rejected upload with no side effects.
func (p *Parser) Parse(blob []byte, existing *langpack.LangPack) (*Data, error) {
	if len(blob) == 0 {
		return nil, validationf("", "empty upload")
	}
	if len(blob) > MaxPackageSize {
		return nil, validationf("", "package exceeds %d bytes", MaxPackageSize)
	}

	raw, err := readManifest(blob)
	if err != nil {
		return nil, err
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, validationf(ManifestFilename, "invalid JSON: %v", err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, validationf(ManifestFilename, "schema validation failed: %v", err)
	}

	fields := doc.(map[string]any)

	version := fields["version"].(string)
	if _, err := semver.NewVersion(version); err != nil {
		return nil, validationf("version", "not a valid version: %q", version)
	}

	locale, err := extractLocale(fields)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Locale != "" && existing.Locale != locale {
		return nil, validationf("languages-provided",
			"locale %q does not match the pack's locale %q", locale, existing.Locale)
	}

	platformVersion, err := extractPlatformVersion(fields)
	if err != nil {
		return nil, err
	}

	return &Data{
		Locale:          locale,
		PlatformVersion: platformVersion,
		Version:         version,
		Raw:             raw,
	}, nil
}

// readManifest opens the blob as a zip archive and returns the bytes of the
// root-level manifest member.
func readManifest(blob []byte) (json.RawMessage, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, validationf("", "not a valid zip archive: %v", err)
	}

	for _, f := range zr.File {
		if f.Name != ManifestFilename {
			continue
		}
		if f.UncompressedSize64 > MaxManifestSize {
			return nil, validationf(ManifestFilename, "manifest exceeds %d bytes", MaxManifestSize)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, validationf(ManifestFilename, "cannot open manifest: %v", err)
		}
		defer func() { _ = rc.Close() }()

		raw, err := io.ReadAll(io.LimitReader(rc, MaxManifestSize+1))
		if err != nil {
			return nil, validationf(ManifestFilename, "cannot read manifest: %v", err)
		}
		if len(raw) > MaxManifestSize {
			return nil, validationf(ManifestFilename, "manifest exceeds %d bytes", MaxManifestSize)
		}
		return raw, nil
	}
	return nil, validationf(ManifestFilename, "missing from archive root")
}

// extractLocale requires exactly one languages-provided entry and returns its
// canonicalized BCP 47 tag.
func extractLocale(fields map[string]any) (string, error) {
	provided := fields["languages-provided"].(map[string]any)
	if len(provided) != 1 {
		return "", validationf("languages-provided",
			"must declare exactly one language, got %d", len(provided))
	}
	var code string
	for k := range provided {
		code = k
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", validationf("languages-provided", "invalid language tag %q: %v", code, err)
	}
	return strings.ToLower(tag.String()), nil
}

// extractPlatformVersion returns the version string of the single
// languages-target entry.
func extractPlatformVersion(fields map[string]any) (string, error) {
	target := fields["languages-target"].(map[string]any)
	for _, v := range target {
		ver := v.(string)
		if _, err := semver.NewVersion(ver); err != nil {
			return "", validationf("languages-target", "not a valid version: %q", ver)
		}
		return ver, nil
	}
	return "", validationf("languages-target", "missing target version")
}
