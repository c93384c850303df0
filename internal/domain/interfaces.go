// Package domain defines the core business entities and interfaces for reference-find.
// This package contains no external dependencies and represents the innermost layer
// of the CLEAN architecture.
package domain

import (
	"context"
	"errors"
)

// Domain errors for the build graph, commit matching and reference storage.
var (
	// ErrJobNotFound indicates the requested job does not exist in the build graph.
	ErrJobNotFound = errors.New("job not found")

	// ErrBuildNotFound indicates the requested build does not exist in the build graph.
	ErrBuildNotFound = errors.New("build not found")

	// ErrInvalidBuildID indicates a build id is not of the form "<job>#<number>".
	ErrInvalidBuildID = errors.New("invalid build id")

	// ErrInvalidResult indicates an unknown build result name.
	ErrInvalidResult = errors.New("invalid build result")

	// ErrGraphInvalid indicates the build graph violates its invariants.
	ErrGraphInvalid = errors.New("invalid build graph")

	// ErrRepositoryNotFound indicates the specified path is not a valid Git repository.
	ErrRepositoryNotFound = errors.New("git repository not found at specified path")

	// ErrCommitNotFound indicates a build's commit is not present in the repository.
	ErrCommitNotFound = errors.New("commit not found in repository")

	// ErrReferenceNotFound indicates no reference build was stored for a build.
	ErrReferenceNotFound = errors.New("no reference build stored")
)

// JobProvider resolves jobs and their containers.
type JobProvider interface {
	// JobByName returns the job with the given full name.
	JobByName(name string) (*Job, bool)

	// Parent returns the container that directly owns the job.
	Parent(job *Job) (*Container, bool)

	// ChildByBranchName returns the child job of the container for the branch.
	ChildByBranchName(container *Container, branch string) (*Job, bool)

	// AllJobs enumerates the jobs of the container, including nested folders,
	// in a stable order.
	AllJobs(container *Container) []*Job
}

// BuildHistoryProvider exposes the build history of jobs.
type BuildHistoryProvider interface {
	// LastCompletedBuild returns the newest build that is no longer running.
	LastCompletedBuild(job *Job) (*Build, bool)

	// LastBuild returns the newest build, running or not.
	LastBuild(job *Job) (*Build, bool)

	// PreviousCompletedBuild returns the newest completed build of the same job
	// that is older than the given build.
	PreviousCompletedBuild(build *Build) (*Build, bool)
}

// BranchMetadataProvider exposes source control metadata of branch jobs.
type BranchMetadataProvider interface {
	// Head returns the branch head of the job, if it has one.
	Head(job *Job) (BranchHead, bool)

	// IsPrimary reports whether the job is marked as the primary branch.
	IsPrimary(job *Job) bool
}

// BuildGraph combines the three read-only views of the build graph.
type BuildGraph interface {
	JobProvider
	BuildHistoryProvider
	BranchMetadataProvider

	// Build returns the build with the given externalizable id.
	Build(id string) (*Build, bool)
}

// CommitMatcher decides whether two builds share commit ancestry that makes
// them comparable. Implementations are typically expensive.
type CommitMatcher interface {
	// IsRelated reports whether the candidate build may serve as reference
	// for the originating build.
	IsRelated(ctx context.Context, candidate, originating *Build) (bool, error)
}

// GraphLoader loads a snapshot of the build graph from a backing store.
type GraphLoader interface {
	// LoadGraph returns the build graph.
	LoadGraph(ctx context.Context) (BuildGraph, error)

	// Close releases any resources held by the loader.
	Close() error
}

// ReferenceStore persists resolved reference builds keyed by the originating build.
type ReferenceStore interface {
	// SaveReference stores the reference build of an originating build.
	// An outcome is stored once: saving again for the same build never
	// replaces the first one.
	SaveReference(ctx context.Context, ref ReferenceBuild) error

	// FindReference returns the stored reference build of an originating build.
	// Returns ErrReferenceNotFound if nothing was stored.
	FindReference(ctx context.Context, ownerBuildID string) (*ReferenceBuild, error)

	// Close releases any resources held by the store.
	Close() error
}

// OutputWriter writes resolved reference data to an output destination.
type OutputWriter interface {
	// WriteReference writes the reference build id of the outcome.
	WriteReference(ref ReferenceBuild) error

	// WriteTrail writes the resolution trail.
	WriteTrail(ref ReferenceBuild) error
}
