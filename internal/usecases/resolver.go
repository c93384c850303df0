// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// Logger defines the logging interface required by the resolver.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// ReferenceResolver finds the reference build of a build.
// It implements the resolution engine: target branch inference, reference job
// lookup, start build selection and the history walk.
//
// A ReferenceResolver holds no per-resolution state and may be used by
// several goroutines at once.
type ReferenceResolver struct {
	jobs     domain.JobProvider
	cfg      domain.Configuration
	target   *BranchTargetResolver
	locator  *JobLocator
	selector *StartBuildSelector
	walker   *HistoryWalker
	logger   Logger
}

// NewReferenceResolver creates a new ReferenceResolver with the given dependencies.
// The configuration is copied and never changed by the resolver.
func NewReferenceResolver(
	jobs domain.JobProvider,
	history domain.BuildHistoryProvider,
	branches domain.BranchMetadataProvider,
	matcher domain.CommitMatcher,
	cfg domain.Configuration,
	log Logger,
) *ReferenceResolver {
	return &ReferenceResolver{
		jobs:     jobs,
		cfg:      cfg,
		target:   NewBranchTargetResolver(jobs, branches),
		locator:  NewJobLocator(jobs),
		selector: NewStartBuildSelector(history),
		walker:   NewHistoryWalker(history, matcher),
		logger:   log,
	}
}

// NewReferenceResolverForGraph creates a ReferenceResolver backed by a single build graph.
func NewReferenceResolverForGraph(
	graph domain.BuildGraph,
	matcher domain.CommitMatcher,
	cfg domain.Configuration,
	log Logger,
) *ReferenceResolver {
	return NewReferenceResolver(graph, graph, graph, matcher, cfg, log)
}

// Configuration returns the configuration the resolver was created with.
func (r *ReferenceResolver) Configuration() domain.Configuration {
	return r.cfg
}

// FindReferenceBuild resolves the reference build of build.
// Every step is appended to log; the returned ReferenceBuild carries a copy of
// the complete trail. Unresolvable conditions yield an empty result.
func (r *ReferenceResolver) FindReferenceBuild(
	ctx context.Context,
	build *domain.Build,
	log *domain.ResolutionLog,
) domain.ReferenceBuild {
	ref := domain.ReferenceBuild{
		OwnerJob:     build.JobName,
		OwnerBuildID: build.ID,
	}

	r.logger.Info(ctx, "starting reference build resolution", map[string]interface{}{
		"build":           build.ID,
		"reference_job":   r.cfg.ReferenceJob,
		"target_branch":   r.cfg.TargetBranch,
		"required_result": r.cfg.RequiredResult.String(),
		"running_allowed": r.cfg.ConsiderRunningBuild,
	})

	if found, ok := r.resolve(ctx, build, log); ok {
		ref.ReferenceJob = found.JobName
		ref.ReferenceBuildID = found.ID
		log.Logf("Reference build: '%s'", found.ID)
		r.logger.Info(ctx, "reference build resolved", map[string]interface{}{
			"build":           build.ID,
			"reference_build": found.ID,
			"reference_job":   found.JobName,
			"result":          found.Result.String(),
		})
	} else {
		log.Logf("No reference build found")
		r.logger.Warn(ctx, "no reference build found", map[string]interface{}{
			"build": build.ID,
		})
	}

	ref.Messages = log.Messages()
	return ref
}

func (r *ReferenceResolver) resolve(
	ctx context.Context,
	build *domain.Build,
	log *domain.ResolutionLog,
) (*domain.Build, bool) {
	job, explicit, ok := r.referenceJob(ctx, build, log)
	if !ok {
		return nil, false
	}

	start, ok := r.selector.Select(job, r.cfg)
	if !ok {
		log.Logf("No completed build found for reference job '%s'", r.jobLabel(job))
		return nil, false
	}
	if explicit {
		log.Logf("Found reference build '%s' for reference job '%s'", start.ID, job.Name)
	} else {
		log.Logf("Found reference build '%s' for target branch", start.ID)
	}

	r.logger.Debug(ctx, "walking reference build history", map[string]interface{}{
		"build":       build.ID,
		"start_build": start.ID,
		"running":     start.Building,
	})

	if found, ok := r.walker.Walk(ctx, build, start, r.cfg.RequiredResult, log); ok {
		return found, true
	}

	if r.cfg.LatestBuildIfNotFound {
		log.Logf("-> falling back to latest build '%s' of reference job", start.ID)
		return start, true
	}
	return nil, false
}

// referenceJob determines the job to take reference builds from. The bool
// explicit is true if the job was configured rather than inferred.
func (r *ReferenceResolver) referenceJob(
	ctx context.Context,
	build *domain.Build,
	log *domain.ResolutionLog,
) (job *domain.Job, explicit bool, ok bool) {
	if r.cfg.ReferenceJob != "" {
		log.Logf("Configured reference job: '%s'", r.cfg.ReferenceJob)
		job, ok := r.jobs.JobByName(r.cfg.ReferenceJob)
		if !ok {
			log.Logf("No reference job found with name '%s'", r.cfg.ReferenceJob)
			return nil, true, false
		}
		return job, true, true
	}
	log.Logf("No reference job configured")

	current, ok := r.jobs.JobByName(build.JobName)
	if !ok {
		r.logger.Warn(ctx, "job of build not found in build graph", map[string]interface{}{
			"build": build.ID,
			"job":   build.JobName,
		})
		return nil, false, false
	}

	container, ok := r.jobs.Parent(current)
	if !ok || !container.MultiBranch {
		return nil, false, false
	}

	log.Logf("Found a MultiBranchProject, trying to resolve the target branch from the configuration")
	branch := r.target.Resolve(current, container, r.cfg, log)

	r.logger.Debug(ctx, "resolved target branch", map[string]interface{}{
		"build":     build.ID,
		"container": container.Name,
		"branch":    branch,
	})

	job, ok = r.locator.Locate(container, branch, log)
	return job, false, ok
}

// jobLabel names a job the way its branch is named: head name, display name
// or the last element of the full name.
func (r *ReferenceResolver) jobLabel(job *domain.Job) string {
	return r.target.branchName(job)
}
