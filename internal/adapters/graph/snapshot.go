package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// Snapshot is the file representation of a build graph. JSON is accepted as
// well since it is a subset of YAML.
type Snapshot struct {
	Containers []domain.Container `yaml:"containers"`
	Jobs       []SnapshotJob      `yaml:"jobs"`
}

// SnapshotJob is a job with its branch metadata and build history, oldest build first.
type SnapshotJob struct {
	Name        string             `yaml:"name"`
	DisplayName string             `yaml:"display_name,omitempty"`
	Container   string             `yaml:"container,omitempty"`
	Primary     bool               `yaml:"primary,omitempty"`
	Head        *domain.BranchHead `yaml:"head,omitempty"`
	Builds      []SnapshotBuild    `yaml:"builds,omitempty"`
}

// SnapshotBuild is one build of a SnapshotJob.
type SnapshotBuild struct {
	Number      int    `yaml:"number"`
	DisplayName string `yaml:"display_name,omitempty"`
	Result      string `yaml:"result,omitempty"`
	Building    bool   `yaml:"building,omitempty"`
	Commit      string `yaml:"commit,omitempty"`
}

// ErrSnapshotNotFound indicates the snapshot file does not exist.
var ErrSnapshotNotFound = errors.New("build graph snapshot not found")

// Build converts the snapshot into a Graph, validating every invariant.
// Containers may be listed in any order.
func (s *Snapshot) Build() (*Graph, error) {
	g := New()
	if err := addContainers(g, s.Containers); err != nil {
		return nil, err
	}
	for _, j := range s.Jobs {
		job := domain.Job{Name: j.Name, DisplayName: j.DisplayName, Container: j.Container}
		if err := g.AddJob(job, j.Head, j.Primary); err != nil {
			return nil, err
		}
		for _, b := range j.Builds {
			result, err := snapshotResult(b)
			if err != nil {
				return nil, fmt.Errorf("build %d of %q: %w", b.Number, j.Name, err)
			}
			build := domain.Build{
				JobName:     j.Name,
				Number:      b.Number,
				DisplayName: b.DisplayName,
				Result:      result,
				Building:    b.Building,
				Commit:      b.Commit,
			}
			if err := g.AddBuild(build); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// addContainers adds parents before their children.
func addContainers(g *Graph, containers []domain.Container) error {
	known := make(map[string]bool, len(containers))
	pending := containers
	for len(pending) > 0 {
		var next []domain.Container
		for _, c := range pending {
			if c.Parent != "" && !known[c.Parent] {
				next = append(next, c)
				continue
			}
			if err := g.AddContainer(c); err != nil {
				return err
			}
			known[c.Name] = true
		}
		if len(next) == len(pending) {
			// Nothing was added, so the first pending container reports the missing parent.
			return g.AddContainer(next[0])
		}
		pending = next
	}
	return nil
}

// A running build without a result has not failed yet.
func snapshotResult(b SnapshotBuild) (domain.Result, error) {
	if b.Result == "" && b.Building {
		return domain.ResultSuccess, nil
	}
	return domain.ParseResult(b.Result)
}

// ReadSnapshot decodes a snapshot and builds the graph.
func ReadSnapshot(r io.Reader) (*Graph, error) {
	var snapshot Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snapshot); err != nil {
		if errors.Is(err, io.EOF) {
			return New(), nil
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrGraphInvalid, err)
	}
	return snapshot.Build()
}

// FileLoader loads the build graph from a snapshot file.
type FileLoader struct {
	path string
}

var _ domain.GraphLoader = (*FileLoader)(nil)

// NewFileLoader creates a FileLoader for the snapshot at path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// LoadGraph reads and validates the snapshot file.
func (l *FileLoader) LoadGraph(_ context.Context) (domain.BuildGraph, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, l.path)
		}
		return nil, fmt.Errorf("failed to open build graph snapshot: %w", err)
	}
	defer f.Close()

	g, err := ReadSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read build graph snapshot %s: %w", l.path, err)
	}
	return g, nil
}

// Close is a no-op; the file is closed after each load.
func (l *FileLoader) Close() error {
	return nil
}
