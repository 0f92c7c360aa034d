package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"hs-go/internal/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if _, err := model.ParseSorting(cfg.Listing.DefaultSort); err != nil {
		return fmt.Errorf("listing.default_sort: %w", err)
	}
	if cfg.Storage.Type == "memory" && cfg.Database.Type == "sqlite" {
		return fmt.Errorf("storage: memory storage cannot back a persistent sqlite catalog")
	}
	return nil
}

// formatValidationError reports the first failed field.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
