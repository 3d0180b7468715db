package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/CompassSecurity/jsleek/pkg/format"
)

// ValidateURL validates that a string is an absolute http(s) URL.
func ValidateURL(urlStr string, fieldName string) error {
	if urlStr == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", fieldName, err)
	}

	if parsed.Scheme == "" {
		return fmt.Errorf("%s must include a scheme (http/https)", fieldName)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got %s", fieldName, parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}

	return nil
}

// ParseMaxFileSize parses a human-readable size string (e.g., "50MB", "1GB") into bytes.
func ParseMaxFileSize(sizeStr string) (int64, error) {
	size, err := format.ParseHumanSize(sizeStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse max file size: %w", err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("max file size must be positive, got %s", sizeStr)
	}
	return size, nil
}

// ValidateConfidence validates that a confidence threshold is within 0..100.
func ValidateConfidence(confidence int) error {
	if confidence < 0 || confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100, got %d", confidence)
	}
	return nil
}

// ValidateTimeout validates that a timeout is positive.
func ValidateTimeout(timeout time.Duration, fieldName string) error {
	if timeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", fieldName, timeout)
	}
	return nil
}

// ValidateThreadCount validates that the thread count is within acceptable bounds.
func ValidateThreadCount(threads int) error {
	if threads < 1 {
		return fmt.Errorf("thread count must be at least 1, got %d", threads)
	}
	if threads > 100 {
		return fmt.Errorf("thread count too high (max 100), got %d", threads)
	}
	return nil
}

// ParseHeaders parses "Name: value" pairs into a header map.
func ParseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// Validate checks all fields of the scan options.
func (o ScanOptions) Validate() error {
	if err := ValidateConfidence(o.MinConfidence); err != nil {
		return err
	}
	if err := ValidateTimeout(o.RuleTimeout, "rule timeout"); err != nil {
		return err
	}
	if err := ValidateTimeout(o.Timeout, "timeout"); err != nil {
		return err
	}
	if o.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", o.MaxFileSize)
	}
	if o.RequestsPerSecond < 0 {
		return fmt.Errorf("request rate must not be negative, got %g", o.RequestsPerSecond)
	}
	if o.TruffleHog {
		if err := ValidateThreadCount(o.MaxScanGoRoutines); err != nil {
			return err
		}
	}
	return nil
}
