// Package domain defines the core business entities and interfaces for reference-find.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTargetBranch is used when no other rule yields a target branch.
const DefaultTargetBranch = "master"

// NoReference is printed in place of a reference build id when none was found.
const NoReference = "-"

// Job is a named pipeline that produces an ordered sequence of builds.
type Job struct {
	// Name is the full name of the job, including its containers (e.g. "project/main").
	Name string `json:"name" yaml:"name"`

	// DisplayName is the short name shown to users. For branch jobs of a
	// multi-branch project this is the branch name.
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`

	// Container is the full name of the container owning this job.
	// Empty for top level jobs.
	Container string `json:"container,omitempty" yaml:"container,omitempty"`
}

// Container groups jobs. Containers may be nested in folders.
type Container struct {
	// Name is the full name of the container.
	Name string `json:"name" yaml:"name"`

	// Parent is the full name of the enclosing folder, empty at top level.
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`

	// MultiBranch marks a multi-branch project: one child job per branch.
	MultiBranch bool `json:"multi_branch,omitempty" yaml:"multi_branch,omitempty"`
}

// Build is one execution of a Job.
type Build struct {
	// ID is the externalizable identifier, "<job>#<number>".
	ID string `json:"id"`

	// JobName is the full name of the owning job.
	JobName string `json:"job_name"`

	// Number is the build number within the job.
	Number int `json:"number"`

	// DisplayName is the name shown to users, typically "#<number>".
	DisplayName string `json:"display_name,omitempty"`

	// Result is the (possibly preliminary) result of the build.
	Result Result `json:"result"`

	// Building is true while the build is still running.
	Building bool `json:"building,omitempty"`

	// Commit is the head revision the build checked out.
	Commit string `json:"commit,omitempty"`
}

// BuildID returns the externalizable id of a build.
func BuildID(jobName string, number int) string {
	return fmt.Sprintf("%s#%d", jobName, number)
}

// ParseBuildID splits an externalizable id into job name and build number.
func ParseBuildID(id string) (string, int, error) {
	idx := strings.LastIndex(id, "#")
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidBuildID, id)
	}
	number, err := strconv.Atoi(id[idx+1:])
	if err != nil || number <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidBuildID, id)
	}
	return id[:idx], number, nil
}

// BranchHead is source control metadata attached to a branch job.
type BranchHead struct {
	// Name is the branch name.
	Name string `json:"name" yaml:"name"`

	// Target is the branch a pull or merge request wants to merge into.
	// Empty if the head is not a change request.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
}

// IsChangeRequest reports whether the head represents a pull or merge request.
func (h BranchHead) IsChangeRequest() bool {
	return h.Target != ""
}

// ReferenceBuild is the outcome of a resolution. It is created once per
// originating build and never mutated afterwards.
type ReferenceBuild struct {
	// OwnerJob is the job of the originating build.
	OwnerJob string `json:"owner_job"`

	// OwnerBuildID is the id of the originating build.
	OwnerBuildID string `json:"owner_build_id"`

	// ReferenceJob is the job that owns the reference build, empty if none.
	ReferenceJob string `json:"reference_job,omitempty"`

	// ReferenceBuildID is the id of the reference build, empty if none.
	ReferenceBuildID string `json:"reference_build_id,omitempty"`

	// Messages is the resolution trail.
	Messages []string `json:"messages,omitempty"`
}

// HasReference reports whether a reference build was found.
func (r ReferenceBuild) HasReference() bool {
	return r.ReferenceBuildID != ""
}

// ReferenceBuildIDOrPlaceholder returns the reference id or NoReference.
func (r ReferenceBuild) ReferenceBuildIDOrPlaceholder() string {
	if r.HasReference() {
		return r.ReferenceBuildID
	}
	return NoReference
}
