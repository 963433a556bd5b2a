package manifest_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/packd/pkg/langpack"
	"github.com/packforge/packd/pkg/manifest"
)

// buildArchive assembles an in-memory zip with the given members.
func buildArchive(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const validManifest = `{
	"name": "German language pack",
	"version": "1.0.3",
	"role": "langpack",
	"developer": {"name": "Packforge"},
	"languages-provided": {
		"de": {
			"name": "Deutsch",
			"revision": 201411051234,
			"apps": {"app://calendar.gaiamobile.org/manifest.webapp": "/de/calendar"}
		}
	},
	"languages-target": {"app://*.gaiamobile.org/manifest.webapp": "2.2"}
}`

func validArchive(t *testing.T) []byte {
	return buildArchive(t, map[string]string{
		manifest.ManifestFilename: validManifest,
		"de/calendar/app.json":    `{}`,
	})
}

func newParser(t *testing.T) *manifest.Parser {
	t.Helper()
	p, err := manifest.NewParser()
	require.NoError(t, err)
	return p
}

func TestParse_Valid(t *testing.T) {
	p := newParser(t)

	data, err := p.Parse(validArchive(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "de", data.Locale)
	assert.Equal(t, "2.2", data.PlatformVersion)
	assert.Equal(t, "1.0.3", data.Version)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data.Raw, &doc))
	assert.Equal(t, "German language pack", doc["name"])
}

func TestParse_EmptyUpload(t *testing.T) {
	p := newParser(t)
	_, err := p.Parse(nil, nil)
	var verr *manifest.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParse_NotAZip(t *testing.T) {
	p := newParser(t)
	_, err := p.Parse([]byte("definitely not a zip"), nil)
	var verr *manifest.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Msg, "zip")
}

func TestParse_MissingManifest(t *testing.T) {
	p := newParser(t)
	blob := buildArchive(t, map[string]string{"readme.txt": "hi"})
	_, err := p.Parse(blob, nil)
	var verr *manifest.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, manifest.ManifestFilename, verr.Field)
}

func TestParse_ManifestNotJSON(t *testing.T) {
	p := newParser(t)
	blob := buildArchive(t, map[string]string{manifest.ManifestFilename: "{nope"})
	_, err := p.Parse(blob, nil)
	var verr *manifest.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParse_SchemaViolations(t *testing.T) {
	p := newParser(t)

	cases := map[string]string{
		"missing version": `{
			"name": "x", "role": "langpack",
			"languages-provided": {"de": {}},
			"languages-target": {"t": "2.2"}
		}`,
		"wrong role": `{
			"name": "x", "version": "1.0", "role": "addon",
			"languages-provided": {"de": {}},
			"languages-target": {"t": "2.2"}
		}`,
		"empty languages-provided": `{
			"name": "x", "version": "1.0", "role": "langpack",
			"languages-provided": {},
			"languages-target": {"t": "2.2"}
		}`,
		"non-numeric version": `{
			"name": "x", "version": "one.two", "role": "langpack",
			"languages-provided": {"de": {}},
			"languages-target": {"t": "2.2"}
		}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			blob := buildArchive(t, map[string]string{manifest.ManifestFilename: doc})
			_, err := p.Parse(blob, nil)
			var verr *manifest.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestParse_MultipleLanguagesRejected(t *testing.T) {
	p := newParser(t)
	doc := `{
		"name": "x", "version": "1.0", "role": "langpack",
		"languages-provided": {"de": {}, "fr": {}},
		"languages-target": {"t": "2.2"}
	}`
	blob := buildArchive(t, map[string]string{manifest.ManifestFilename: doc})
	_, err := p.Parse(blob, nil)
	var verr *manifest.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "languages-provided", verr.Field)
}

func TestParse_InvalidLanguageTag(t *testing.T) {
	p := newParser(t)
	doc := `{
		"name": "x", "version": "1.0", "role": "langpack",
		"languages-provided": {"not a tag!": {}},
		"languages-target": {"t": "2.2"}
	}`
	blob := buildArchive(t, map[string]string{manifest.ManifestFilename: doc})
	_, err := p.Parse(blob, nil)
	var verr *manifest.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParse_LocaleCanonicalized(t *testing.T) {
	p := newParser(t)
	doc := `{
		"name": "x", "version": "1.0", "role": "langpack",
		"languages-provided": {"EN-us": {}},
		"languages-target": {"t": "2.2"}
	}`
	blob := buildArchive(t, map[string]string{manifest.ManifestFilename: doc})
	data, err := p.Parse(blob, nil)
	require.NoError(t, err)
	assert.Equal(t, "en-us", data.Locale)
}

func TestParse_LocaleMismatchWithExistingPack(t *testing.T) {
	p := newParser(t)
	existing := &langpack.LangPack{UUID: "abc", Locale: "fr"}

	_, err := p.Parse(validArchive(t), existing)
	var verr *manifest.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Msg, `"fr"`)
}

func TestParse_MatchingLocaleWithExistingPack(t *testing.T) {
	p := newParser(t)
	existing := &langpack.LangPack{UUID: "abc", Locale: "de"}

	data, err := p.Parse(validArchive(t), existing)
	require.NoError(t, err)
	assert.Equal(t, "de", data.Locale)
}

func TestParse_PartialPlatformVersionAccepted(t *testing.T) {
	p := newParser(t)
	// Platform versions like "2.5" are two-segment; the lenient semver
	// parser must accept them.
	data, err := p.Parse(validArchive(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "2.2", data.PlatformVersion)
}
