package format

import (
	"archive/zip"
	"bytes"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	gounits "github.com/docker/go-units"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
)

const (
	// DirUserGroupRead is for directories readable by owner and group (rwxr-x---)
	DirUserGroupRead fs.FileMode = 0750

	// FilePublicRead is for world-readable files such as reports (rw-r--r--)
	FilePublicRead fs.FileMode = 0644

	// FileUserReadWrite is for sensitive files like logs and AI settings (rw-------)
	FileUserReadWrite fs.FileMode = 0600
)

var folder = cases.Fold()

// Fold returns the case-folded form of s, used for case-insensitive comparisons.
func Fold(s string) string {
	return folder.String(s)
}

// ContainsI reports whether b occurs in a, ignoring case.
func ContainsI(a string, b string) bool {
	return strings.Contains(Fold(a), Fold(b))
}

// Truncate shortens s to at most n runes and appends "..." when it was cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// CalculateZipFileSize returns the aggregated uncompressed size of files inside a zip archive
func CalculateZipFileSize(data []byte) uint64 {
	zipListing, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Debug().Err(err).Msg("Failed calculating zip file size")
		return 0
	}

	totalSize := uint64(0)
	for _, file := range zipListing.File {
		totalSize += file.UncompressedSize64
	}
	return totalSize
}

// ParseHumanSize parses a human-readable size string (e.g., "500Mb", "2Gb") into bytes
func ParseHumanSize(size string) (int64, error) {
	return gounits.FromHumanSize(size)
}

// HumanSize formats a byte count for log output.
func HumanSize(size int64) string {
	return gounits.HumanSize(float64(size))
}

func IsDirectory(path string) bool {
	fileInfo, err := os.Stat(path)
	if err != nil {
		// non-existent paths count as directories so callers may create them
		return true
	}
	return fileInfo.IsDir()
}
