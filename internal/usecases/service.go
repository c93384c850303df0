package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// TrailMirror receives the outcome of every resolution, e.g. to copy the
// trail into the structured log.
type TrailMirror interface {
	Mirror(ctx context.Context, ref domain.ReferenceBuild)
}

// ReferenceService resolves reference builds against a freshly loaded build
// graph and optionally persists the outcome.
type ReferenceService struct {
	loader  domain.GraphLoader
	matcher domain.CommitMatcher
	store   domain.ReferenceStore
	mirror  TrailMirror
	logger  Logger
}

// ServiceOption configures optional collaborators of a ReferenceService.
type ServiceOption func(*ReferenceService)

// WithReferenceStore persists every resolved reference in store and serves
// lookups from it.
func WithReferenceStore(store domain.ReferenceStore) ServiceOption {
	return func(s *ReferenceService) {
		s.store = store
	}
}

// WithTrailMirror hands every outcome to mirror.
func WithTrailMirror(mirror TrailMirror) ServiceOption {
	return func(s *ReferenceService) {
		s.mirror = mirror
	}
}

// NewReferenceService creates a ReferenceService.
func NewReferenceService(
	loader domain.GraphLoader,
	matcher domain.CommitMatcher,
	log Logger,
	opts ...ServiceOption,
) *ReferenceService {
	s := &ReferenceService{
		loader:  loader,
		matcher: matcher,
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve resolves the reference build of build number of job using cfg and
// stores the outcome when a store is configured and holds none for the build yet.
// Returns domain.ErrBuildNotFound if the build is not part of the graph.
func (s *ReferenceService) Resolve(
	ctx context.Context,
	jobName string,
	number int,
	cfg domain.Configuration,
) (domain.ReferenceBuild, error) {
	id := domain.BuildID(jobName, number)

	g, err := s.loader.LoadGraph(ctx)
	if err != nil {
		return domain.ReferenceBuild{}, fmt.Errorf("failed to load build graph: %w", err)
	}

	build, ok := g.Build(id)
	if !ok {
		return domain.ReferenceBuild{}, fmt.Errorf("%w: %s", domain.ErrBuildNotFound, id)
	}

	resolver := NewReferenceResolverForGraph(g, s.matcher, cfg, s.logger)
	ref := resolver.FindReferenceBuild(ctx, build, domain.NewResolutionLog())

	if s.mirror != nil {
		s.mirror.Mirror(ctx, ref)
	}

	if s.store != nil {
		if err := s.persist(ctx, ref); err != nil {
			return domain.ReferenceBuild{}, fmt.Errorf("failed to store reference of %s: %w", id, err)
		}
	}

	return ref, nil
}

// persist stores ref unless an outcome is already stored for its build.
// A stored outcome is never replaced.
func (s *ReferenceService) persist(ctx context.Context, ref domain.ReferenceBuild) error {
	stored, err := s.store.FindReference(ctx, ref.OwnerBuildID)
	if err == nil {
		s.logger.Debug(ctx, "reference build already stored, keeping it", map[string]interface{}{
			"build":    ref.OwnerBuildID,
			"stored":   stored.ReferenceBuildIDOrPlaceholder(),
			"resolved": ref.ReferenceBuildIDOrPlaceholder(),
		})
		return nil
	}
	if !errors.Is(err, domain.ErrReferenceNotFound) {
		return err
	}

	if err := s.store.SaveReference(ctx, ref); err != nil {
		return err
	}
	s.logger.Debug(ctx, "stored reference build", map[string]interface{}{
		"build":     ref.OwnerBuildID,
		"reference": ref.ReferenceBuildIDOrPlaceholder(),
	})
	return nil
}

// Lookup returns the stored reference of the build, resolving and storing it
// when nothing was stored yet.
func (s *ReferenceService) Lookup(
	ctx context.Context,
	jobName string,
	number int,
	cfg domain.Configuration,
) (domain.ReferenceBuild, error) {
	if s.store != nil {
		id := domain.BuildID(jobName, number)
		ref, err := s.store.FindReference(ctx, id)
		if err == nil {
			return *ref, nil
		}
		if !errors.Is(err, domain.ErrReferenceNotFound) {
			return domain.ReferenceBuild{}, err
		}
		s.logger.Debug(ctx, "no stored reference, resolving", map[string]interface{}{
			"build": id,
		})
	}
	return s.Resolve(ctx, jobName, number, cfg)
}
