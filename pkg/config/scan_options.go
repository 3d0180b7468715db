// Package config provides the scan configuration types and validation helpers
// shared by the jsleek commands.
package config

import "time"

// ScanOptions contains the settings of one scan run.
type ScanOptions struct {
	// MinConfidence drops findings below this confidence from the report
	MinConfidence int
	// Search restricts the report to findings containing this term
	Search string
	// Dedup collapses identical findings in the report
	Dedup bool
	// RuleTimeout is the matching budget of one rule on one file
	RuleTimeout time.Duration
	// MaxFileSize is the largest file scanned, in bytes
	MaxFileSize int64
	// RulesFile is an optional local path or URL of additional rules
	RulesFile string
	// TruffleHog enables the TruffleHog detectors as an extra secret pass
	TruffleHog bool
	// TruffleHogVerification verifies TruffleHog findings against the provider
	TruffleHogVerification bool
	// MaxScanGoRoutines bounds the TruffleHog detector fan-out
	MaxScanGoRoutines int
	// ProbeSourceMaps requests <script>.map next to every page script
	ProbeSourceMaps bool
	// Timeout is the HTTP timeout for page and rule retrieval
	Timeout time.Duration
	// Headers are sent with every page request
	Headers map[string]string
	// RequestsPerSecond caps page and script requests, zero is unlimited
	RequestsPerSecond float64
}

// DefaultScanOptions returns sensible default values for a scan.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		MinConfidence:          0,
		RuleTimeout:            2 * time.Second,
		MaxFileSize:            50 * 1000 * 1000, // 50MB
		TruffleHog:             false,
		TruffleHogVerification: false,
		MaxScanGoRoutines:      4,
		ProbeSourceMaps:        false,
		Timeout:                30 * time.Second,
		Headers:                map[string]string{},
	}
}
