package docker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/moby/go-archive"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// =============================================================================
// Build Context
// =============================================================================

// tarContext streams dir as a tar archive for ImageBuild, leaving out what
// dir/.dockerignore excludes. The Dockerfile and .dockerignore are always
// sent so the daemon can read them. The caller closes the reader.
func tarContext(dir, dockerfile string) (io.ReadCloser, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("build context %s is not a directory", dir)
	}

	excludes, err := readIgnore(filepath.Join(dir, ".dockerignore"))
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	if excludes, err = keepBuildFiles(excludes, dockerfile); err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	return archive.TarWithOptions(dir, &archive.TarOptions{ExcludePatterns: excludes})
}

// readIgnore returns the patterns of a .dockerignore file, or nil when absent.
func readIgnore(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ignorefile.ReadAll(f)
}

// keepBuildFiles re-includes the Dockerfile and .dockerignore when the
// patterns would exclude them.
func keepBuildFiles(excludes []string, dockerfile string) ([]string, error) {
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	dockerfile = filepath.ToSlash(filepath.Clean(dockerfile))

	excluded, err := patternmatcher.MatchesOrParentMatches(dockerfile, excludes)
	if err != nil {
		return nil, err
	}
	if excluded {
		excludes = append(excludes, "!.dockerignore", "!"+dockerfile)
	}
	return excludes, nil
}
