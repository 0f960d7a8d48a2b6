// Package topology loads the service topology: the suite's embedded default
// or a compose-format document from disk.
package topology

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/artpar/stackup/internal/core/compose"
	"github.com/artpar/stackup/internal/core/domain"
)

//go:embed compose.yaml
var defaultDocument []byte

// Source is a loaded topology together with the document it came from.
type Source struct {
	Topology *compose.Topology
	Document []byte
	// Path is empty for the embedded default.
	Path string
}

// DefaultDocument returns a copy of the embedded default topology.
func DefaultDocument() []byte {
	out := make([]byte, len(defaultDocument))
	copy(out, defaultDocument)
	return out
}

// Default parses the embedded default topology.
func Default(ctx context.Context, opts compose.Options) (*Source, error) {
	topo, err := compose.ParseTopology(ctx, defaultDocument, opts)
	if err != nil {
		return nil, fmt.Errorf("embedded topology: %w", err)
	}
	return &Source{Topology: topo, Document: DefaultDocument()}, nil
}

// Load reads and parses the topology at path. Relative paths inside the
// document resolve against the document's directory unless opts.WorkingDir
// is set.
func Load(ctx context.Context, path string, opts compose.Options) (*Source, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewConfigError("file", fmt.Sprintf("failed to read topology %s", path), err)
	}

	if opts.WorkingDir == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, domain.NewConfigError("file", err.Error(), err)
		}
		opts.WorkingDir = filepath.Dir(abs)
	}

	topo, err := compose.ParseTopology(ctx, content, opts)
	if err != nil {
		return nil, err
	}
	return &Source{Topology: topo, Document: content, Path: path}, nil
}

// Open loads path when it is set and the embedded default otherwise.
func Open(ctx context.Context, path string, opts compose.Options) (*Source, error) {
	if path == "" {
		return Default(ctx, opts)
	}
	return Load(ctx, path, opts)
}
