package manifest

// manifestSchema is the structural contract for langpack manifests. Field
// semantics beyond structure (what a languages-provided entry means to the
// platform) are the consumer's concern.
const manifestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"$id": "https://packforge.dev/schemas/langpack-manifest.json",
	"type": "object",
	"required": ["name", "version", "role", "languages-provided", "languages-target"],
	"properties": {
		"name": {
			"type": "string",
			"minLength": 1,
			"maxLength": 255
		},
		"version": {
			"type": "string",
			"minLength": 1,
			"maxLength": 255,
			"pattern": "^[0-9]+(\\.[0-9]+)*$"
		},
		"role": {
			"const": "langpack"
		},
		"developer": {
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"url": {"type": "string"}
			}
		},
		"description": {
			"type": "string"
		},
		"languages-provided": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"revision": {"type": "integer"},
					"apps": {"type": "object"}
				}
			}
		},
		"languages-target": {
			"type": "object",
			"minProperties": 1,
			"maxProperties": 1,
			"additionalProperties": {
				"type": "string",
				"minLength": 1
			}
		}
	}
}`
