package usecases

import (
	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// StartBuildSelector picks the first candidate build of the reference job.
type StartBuildSelector struct {
	history domain.BuildHistoryProvider
}

// NewStartBuildSelector creates a StartBuildSelector.
func NewStartBuildSelector(history domain.BuildHistoryProvider) *StartBuildSelector {
	return &StartBuildSelector{history: history}
}

// Select returns the last completed build of job, or its last build when
// running builds may be considered.
func (s *StartBuildSelector) Select(job *domain.Job, cfg domain.Configuration) (*domain.Build, bool) {
	if cfg.ConsiderRunningBuild {
		return s.history.LastBuild(job)
	}
	return s.history.LastCompletedBuild(job)
}
