package resource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CompassSecurity/jsleek/pkg/format"
	"github.com/h2non/filetype"
	"github.com/rs/zerolog/log"
	"golift.io/xtractr"
)

const maxArchiveDepth = 10

// ArchiveSource lists the files of an archive bundle such as a zipped build
// output or an exported browser cache. Nested archives are unpacked as well.
// Close removes the extracted files.
type ArchiveSource struct {
	Path string
	// MaxExtractSize limits the total uncompressed size of zip archives; 0 disables the check.
	MaxExtractSize int64

	mu      sync.Mutex
	tempDir string
}

func (a *ArchiveSource) ListResources(ctx context.Context) ([]Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tempDir == "" {
		dir, err := os.MkdirTemp("", "jsleek-archive-")
		if err != nil {
			return nil, fmt.Errorf("cannot create archive temp directory: %w", err)
		}
		a.tempDir = dir
	}

	name := filepath.Base(a.Path)
	resources, err := a.extract(ctx, a.Path, filepath.Join(a.tempDir, "root"), "archive://"+name, 1)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("archive", a.Path).Int("files", len(resources)).Msg("Extracted archive")
	return resources, nil
}

// Close removes the extracted files.
func (a *ArchiveSource) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tempDir == "" {
		return nil
	}
	err := os.RemoveAll(a.tempDir)
	a.tempDir = ""
	return err
}

func (a *ArchiveSource) extract(ctx context.Context, archivePath string, outDir string, urlPrefix string, depth int) ([]Resource, error) {
	// #nosec G304 - archive path is provided by the user or extracted by xtractr
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed reading archive %s: %w", archivePath, err)
	}
	if !filetype.IsArchive(data) {
		return nil, fmt.Errorf("%s is not a supported archive", archivePath)
	}
	if a.MaxExtractSize > 0 {
		if size := format.CalculateZipFileSize(data); size > uint64(a.MaxExtractSize) {
			return nil, fmt.Errorf("archive %s expands to %s, more than the allowed %s", archivePath, format.HumanSize(int64(size)), format.HumanSize(a.MaxExtractSize))
		}
	}

	x := &xtractr.XFile{
		FilePath:  archivePath,
		OutputDir: outDir,
		FileMode:  format.FileUserReadWrite,
		DirMode:   0o700,
	}
	_, files, _, err := xtractr.ExtractFile(x)
	if err != nil {
		return nil, fmt.Errorf("failed extracting archive %s: %w", archivePath, err)
	}

	var resources []Resource
	for _, p := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if format.IsDirectory(p) {
			continue
		}
		rel, err := filepath.Rel(outDir, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		u := urlPrefix + "/" + filepath.ToSlash(rel)

		if isArchiveFile(p) {
			if depth >= maxArchiveDepth {
				log.Debug().Str("file", u).Int("recursionDepth", depth).Msg("Max archive recursion depth reached, skipping further extraction")
				continue
			}
			log.Trace().Str("file", u).Int("depth", depth).Msg("Detected nested archive, recursing")
			nested, err := a.extract(ctx, p, p+".d", u+"!", depth+1)
			if err != nil {
				log.Debug().Err(err).Str("file", u).Msg("Unable to handle nested archive")
				continue
			}
			resources = append(resources, nested...)
			continue
		}

		resources = append(resources, Resource{URL: u, Type: TypeFromPath(p), Fetch: fileFetcher(p)})
	}
	return resources, nil
}

func isArchiveFile(p string) bool {
	f, err := os.Open(p) // #nosec G304 - path produced by xtractr inside the temp directory
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 262)
	n, _ := f.Read(head)
	return filetype.IsArchive(head[:n])
}
