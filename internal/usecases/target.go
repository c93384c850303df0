package usecases

import (
	"path"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// BranchTargetResolver decides which branch of a multi-branch project the
// current job should be compared against.
//
// The first matching rule wins:
//  1. the target branch of the configuration
//  2. the target of a pull or merge request head
//  3. the single job of the project marked as primary branch
//  4. domain.DefaultTargetBranch
type BranchTargetResolver struct {
	jobs     domain.JobProvider
	branches domain.BranchMetadataProvider
}

// NewBranchTargetResolver creates a BranchTargetResolver.
func NewBranchTargetResolver(
	jobs domain.JobProvider,
	branches domain.BranchMetadataProvider,
) *BranchTargetResolver {
	return &BranchTargetResolver{
		jobs:     jobs,
		branches: branches,
	}
}

// Resolve returns the name of the target branch for job, a child of container.
// It always yields a name.
func (r *BranchTargetResolver) Resolve(
	job *domain.Job,
	container *domain.Container,
	cfg domain.Configuration,
	log *domain.ResolutionLog,
) string {
	if cfg.TargetBranch != "" {
		log.Logf("-> using target branch '%s' as configured", cfg.TargetBranch)
		return cfg.TargetBranch
	}
	log.Logf("-> no target branch configured in step")

	if head, ok := r.branches.Head(job); ok && head.IsChangeRequest() {
		log.Logf("-> detected a pull or merge request for target branch '%s'", head.Target)
		return head.Target
	}

	if primary, ok := r.primaryBranch(container); ok {
		log.Logf("-> using configured primary branch '%s' of SCM as target branch", primary)
		return primary
	}

	log.Logf("-> falling back to plugin default target branch '%s'", domain.DefaultTargetBranch)
	return domain.DefaultTargetBranch
}

// primaryBranch returns the branch name of the only primary job of the container.
// Zero or several primary jobs yield no result.
func (r *BranchTargetResolver) primaryBranch(container *domain.Container) (string, bool) {
	var primary *domain.Job
	for _, candidate := range r.jobs.AllJobs(container) {
		if !r.branches.IsPrimary(candidate) {
			continue
		}
		if primary != nil {
			return "", false
		}
		primary = candidate
	}
	if primary == nil {
		return "", false
	}
	return r.branchName(primary), true
}

func (r *BranchTargetResolver) branchName(job *domain.Job) string {
	if head, ok := r.branches.Head(job); ok && head.Name != "" {
		return head.Name
	}
	if job.DisplayName != "" {
		return job.DisplayName
	}
	return path.Base(job.Name)
}
