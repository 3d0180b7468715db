package resource

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

var skippableDirectoryNames = []string{".git", "node_modules", ".yarn", ".yarn-cache", ".npm", "bower_components", "vendor"}

// DirSource lists the files below a local directory, for example a mirrored
// site or an unpacked build output.
type DirSource struct {
	Root string
	// URLPrefix replaces the root directory in resource URLs. When empty the
	// resource URL is a file:// URL.
	URLPrefix string
}

func (d DirSource) ListResources(ctx context.Context) ([]Resource, error) {
	root, err := filepath.Abs(d.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid directory %s: %w", d.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed reading directory %s: %w", d.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", d.Root)
	}

	var resources []Resource
	err = filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("path", p).Msg("Skipping unreadable path")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if p != root && slices.Contains(skippableDirectoryNames, entry.Name()) {
				log.Trace().Str("dir", p).Msg("Skipped directory due to blocklist entry")
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		resources = append(resources, Resource{
			URL:   d.resourceURL(p, rel),
			Type:  TypeFromPath(p),
			Fetch: fileFetcher(p),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed walking directory %s: %w", d.Root, err)
	}

	return resources, nil
}

func (d DirSource) resourceURL(abs string, rel string) string {
	if d.URLPrefix == "" {
		return "file://" + filepath.ToSlash(abs)
	}
	return strings.TrimSuffix(d.URLPrefix, "/") + "/" + filepath.ToSlash(rel)
}

func fileFetcher(p string) ContentFunc {
	return func(context.Context) (string, error) {
		// #nosec G304 - paths come from walking the user supplied directory
		data, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
