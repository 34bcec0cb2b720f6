package config

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/stowage/pkg/driver/onedata"
	"github.com/marmos91/stowage/pkg/space"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Driver-level checks (credentials, remote paths) run when a space is saved,
// not here.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	names := make(map[string]bool)
	for i, sp := range cfg.Spaces {
		if names[sp.Name] {
			return fmt.Errorf("spaces[%d]: duplicate space name %q", i, sp.Name)
		}
		names[sp.Name] = true

		if space.Kind(sp.Type) != space.KindS3 && sp.Path == "" {
			return fmt.Errorf("spaces[%d]: path is required for %s spaces", i, sp.Type)
		}
		if space.Kind(sp.Type) == space.KindOnedata &&
			filepath.Clean(sp.Path) == onedata.ReservedMountPoint {
			return fmt.Errorf("spaces[%d]: path %s is reserved", i, onedata.ReservedMountPoint)
		}
	}

	if cfg.Registry.Type == "badger" {
		if path, _ := cfg.Registry.Badger["path"].(string); path == "" {
			return fmt.Errorf("registry.badger: path is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
