package usecases

import (
	"context"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

const msgNoMatchingReference = "No reference build with required status found that contains matching commits"

// HistoryWalker walks the predecessor chain of a candidate build until it finds
// a build that is related to the originating build and good enough.
//
// The walk has no depth limit: a job with a long run of poor builds is walked
// linearly to its first build. A commit mismatch ends the walk; older builds
// behind an unrelated one are never considered.
type HistoryWalker struct {
	history domain.BuildHistoryProvider
	matcher domain.CommitMatcher
}

// NewHistoryWalker creates a HistoryWalker.
func NewHistoryWalker(history domain.BuildHistoryProvider, matcher domain.CommitMatcher) *HistoryWalker {
	return &HistoryWalker{
		history: history,
		matcher: matcher,
	}
}

// Walk returns the newest build in the chain starting at start that is related
// to originating and has a result of required or better.
func (w *HistoryWalker) Walk(
	ctx context.Context,
	originating *domain.Build,
	start *domain.Build,
	required domain.Result,
	log *domain.ResolutionLog,
) (*domain.Build, bool) {
	if start == nil {
		return nil, false
	}

	visited := make(map[string]struct{})
	first := true
	for candidate := start; candidate != nil; first = false {
		if _, seen := visited[candidate.ID]; seen {
			log.Logf("-> build history of '%s' is cyclic, stopping", candidate.ID)
			break
		}
		visited[candidate.ID] = struct{}{}

		related, err := w.matcher.IsRelated(ctx, candidate, originating)
		if err != nil {
			log.Logf("-> could not compare commits of build '%s': %v", candidate.ID, err)
			log.Logf(msgNoMatchingReference)
			return nil, false
		}
		if !related {
			log.Logf("-> build '%s' does not contain commits of the current build", candidate.ID)
			log.Logf(msgNoMatchingReference)
			return nil, false
		}

		if candidate.Result.IsBetterOrEqualTo(required) {
			if first {
				log.Logf("-> Build '%s' has a result %s", candidate.ID, candidate.Result)
			} else {
				log.Logf("-> Previous build '%s' has a result %s", candidate.ID, candidate.Result)
			}
			return candidate, true
		}

		previous, ok := w.history.PreviousCompletedBuild(candidate)
		if !ok {
			break
		}
		candidate = previous
	}

	log.Logf("-> ignoring reference build '%s' or one of its predecessors since none have a result of %s or better",
		start.ID, required)
	log.Logf(msgNoMatchingReference)
	return nil, false
}
