package usecases

import (
	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// JobLocator finds the sibling job representing a target branch.
type JobLocator struct {
	jobs domain.JobProvider
}

// NewJobLocator creates a JobLocator.
func NewJobLocator(jobs domain.JobProvider) *JobLocator {
	return &JobLocator{jobs: jobs}
}

// Locate returns the child job of container whose branch name equals branch.
// Names are compared exactly.
func (l *JobLocator) Locate(
	container *domain.Container,
	branch string,
	log *domain.ResolutionLog,
) (*domain.Job, bool) {
	job, ok := l.jobs.ChildByBranchName(container, branch)
	if !ok {
		log.Logf("No reference job found for target branch '%s'", branch)
		return nil, false
	}
	log.Logf("-> inferred job for target branch: '%s'", branch)
	return job, true
}
