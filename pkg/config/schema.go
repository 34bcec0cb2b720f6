package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the configuration file, for editors and
// linters that validate YAML against a schema.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true, // Inline all definitions
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "Stowage Configuration"
	schema.Description = "Configuration schema for the stowage storage space manager"

	return json.MarshalIndent(schema, "", "  ")
}
