package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// go-playground/validator handles the declarative part via struct tags;
// rules that cannot be expressed in tags follow as custom checks.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Remote.Enabled {
		bucket, _ := cfg.Remote.S3["bucket"].(string)
		if bucket == "" {
			return fmt.Errorf("remote: enabled but s3.bucket is not set")
		}
		region, _ := cfg.Remote.S3["region"].(string)
		endpoint, _ := cfg.Remote.S3["endpoint"].(string)
		if region == "" && endpoint == "" {
			return fmt.Errorf("remote: enabled but neither s3.region nor s3.endpoint is set")
		}
	}

	return nil
}

// formatValidationError converts validator errors into friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
