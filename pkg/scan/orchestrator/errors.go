package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrScanInfrastructure means the resource listing itself failed. No file was scanned.
	ErrScanInfrastructure = errors.New("resource listing failed")
	// ErrScanAlreadyRunning is returned when a scan is started while another one is in progress.
	ErrScanAlreadyRunning = errors.New("a scan is already running")
	// ErrScanFailed wraps an unexpected failure inside the scan loop.
	ErrScanFailed = errors.New("scan failed")
	// ErrScanCanceled is returned when the context was canceled between two files.
	ErrScanCanceled = errors.New("scan canceled")

	ErrTooLarge = errors.New("content exceeds the maximum file size")
)

// RetrievalError describes why the content of one file could not be used.
type RetrievalError struct {
	URL string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("failed retrieving %s: %v", e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// FileFailure records a file that was skipped because of a RetrievalError.
// The scan continues with the next file.
type FileFailure struct {
	URL string
	Err error
}

func (f FileFailure) Error() string {
	return f.Err.Error()
}

func (f FileFailure) Unwrap() error {
	return f.Err
}
