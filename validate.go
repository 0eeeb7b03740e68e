package bucketx

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string

	// Err is the sentinel the failure maps to (ErrNotConfigured or ErrInvalidConfig)
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidConfig
	}
	return e.Err
}

// ValidateConfig performs validation of the store configuration. Missing
// credentials are reported first and unwrap to ErrNotConfigured, so callers
// can stop before any network activity.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Field: "config", Message: "configuration cannot be nil"}
	}

	if !cfg.IsConfigured() {
		if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
			return &ValidationError{
				Field:   "credentials",
				Message: "both access_key and secret_key must be set together; do not provide only one",
				Err:     ErrNotConfigured,
			}
		}
		return &ValidationError{
			Field:   "credentials",
			Message: "access_key and secret_key are required",
			Err:     ErrNotConfigured,
		}
	}

	var problems []string

	switch cfg.Provider {
	case "":
		problems = append(problems, "provider cannot be empty")
	case ProviderS3, ProviderMinio:
	default:
		problems = append(problems, fmt.Sprintf("unsupported provider %q, only %q and %q are supported", cfg.Provider, ProviderS3, ProviderMinio))
	}

	if cfg.Region == "" && cfg.EndpointURL == "" {
		problems = append(problems, "region is required when endpoint is not specified (AWS mode)")
	}

	if cfg.Provider == ProviderMinio && cfg.EndpointURL == "" {
		problems = append(problems, "endpoint is required for the minio provider")
	}

	if cfg.EndpointURL != "" {
		if err := validateEndpoint(cfg.EndpointURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid endpoint: %v", err))
		}
	}

	if cfg.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if cfg.RequestTimeout > 10*time.Minute {
		problems = append(problems, "request_timeout should not exceed 10 minutes")
	}

	if cfg.MaxRetries < 0 {
		problems = append(problems, "max_retries cannot be negative")
	}
	if cfg.MaxRetries > 10 {
		problems = append(problems, "max_retries should not exceed 10")
	}

	if cfg.BackoffInitial < 0 || cfg.BackoffMax < 0 {
		problems = append(problems, "backoff delays cannot be negative")
	}
	if cfg.BackoffInitial > cfg.BackoffMax {
		problems = append(problems, "backoff_initial cannot be greater than backoff_max")
	}

	if len(problems) > 0 {
		return &ValidationError{
			Field:   "config",
			Message: strings.Join(problems, "; "),
		}
	}

	return nil
}

// ValidateBucketName validates S3 bucket naming rules
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return errors.New("bucket name cannot be empty")
	}

	if len(bucket) < 3 || len(bucket) > 63 {
		return fmt.Errorf("bucket name must be between 3 and 63 characters")
	}

	if strings.HasPrefix(bucket, "-") || strings.HasSuffix(bucket, "-") {
		return fmt.Errorf("bucket name cannot start or end with a hyphen")
	}

	if strings.HasPrefix(bucket, ".") || strings.HasSuffix(bucket, ".") {
		return fmt.Errorf("bucket name cannot start or end with a period")
	}

	if strings.Contains(bucket, "..") {
		return fmt.Errorf("bucket name cannot contain consecutive periods")
	}

	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return fmt.Errorf("bucket name contains invalid character: %c", char)
		}
	}

	parts := strings.Split(bucket, ".")
	if len(parts) == 4 {
		allNumeric := true
		for _, part := range parts {
			if !isNumeric(part) {
				allNumeric = false
				break
			}
		}
		if allNumeric {
			return fmt.Errorf("bucket name cannot be formatted as an IP address")
		}
	}

	return nil
}

func isValidBucketChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '.'
}

func isNumeric(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, char := range s {
		if char < '0' || char > '9' {
			return false
		}
	}
	return true
}

// validateEndpoint validates the endpoint URL format
func validateEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return nil
	}

	if strings.Contains(endpoint, "://") {
		return fmt.Errorf("endpoint protocol must be http or https")
	}

	if strings.Contains(endpoint, " ") {
		return fmt.Errorf("endpoint cannot contain spaces")
	}

	return nil
}
