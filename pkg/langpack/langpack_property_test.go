//go:build property
// +build property

// Package langpack_test contains property-based tests for identity and path
// derivation.
package langpack_test

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/packforge/packd/pkg/langpack"
)

// TestStoragePathDeterminism verifies the storage path is a pure function of
// identity and declared version.
func TestStoragePathDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("same inputs produce the same path", prop.ForAll(
		func(uuid, version string) bool {
			if uuid == "" || version == "" {
				return true
			}
			return langpack.StoragePath(uuid, version) == langpack.StoragePath(uuid, version)
		},
		gen.AlphaString(),
		gen.NumString(),
	))

	properties.Property("different versions produce different paths", prop.ForAll(
		func(uuid, v1, v2 string) bool {
			if uuid == "" || v1 == "" || v2 == "" || v1 == v2 {
				return true
			}
			return langpack.StoragePath(uuid, v1) != langpack.StoragePath(uuid, v2)
		},
		gen.AlphaString(),
		gen.NumString(),
		gen.NumString(),
	))

	properties.TestingRun(t)
}

// TestNewUUIDShape verifies allocated identities are filename and URL safe.
func TestNewUUIDShape(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("identities are 32 lowercase hex chars", prop.ForAll(
		func(_ int) bool {
			id := langpack.NewUUID()
			if len(id) != 32 {
				return false
			}
			return strings.IndexFunc(id, func(r rune) bool {
				return !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'))
			}) == -1
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}
