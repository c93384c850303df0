// Package graph provides an in-memory build graph that implements the
// job, build history and branch metadata ports of the domain.
//
// Build histories are append-only and stored oldest first. Predecessors are
// looked up by index, so no build holds a reference to another build.
package graph

import (
	"fmt"
	"path"
	"sync"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

type jobEntry struct {
	job     domain.Job
	head    *domain.BranchHead
	primary bool
	builds  []domain.Build
}

type buildRef struct {
	job   string
	index int
}

// Graph is a concurrency safe, append-only build graph.
type Graph struct {
	mu         sync.RWMutex
	containers map[string]domain.Container
	jobs       map[string]*jobEntry
	jobOrder   []string
	builds     map[string]buildRef
}

var _ domain.BuildGraph = (*Graph)(nil)

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		containers: make(map[string]domain.Container),
		jobs:       make(map[string]*jobEntry),
		builds:     make(map[string]buildRef),
	}
}

// AddContainer registers a container. Its parent folder must already exist.
func (g *Graph) AddContainer(c domain.Container) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c.Name == "" {
		return fmt.Errorf("%w: container without name", domain.ErrGraphInvalid)
	}
	if _, exists := g.containers[c.Name]; exists {
		return fmt.Errorf("%w: duplicate container %q", domain.ErrGraphInvalid, c.Name)
	}
	if c.Parent != "" {
		if _, ok := g.containers[c.Parent]; !ok {
			return fmt.Errorf("%w: container %q has unknown parent %q", domain.ErrGraphInvalid, c.Name, c.Parent)
		}
	}
	g.containers[c.Name] = c
	return nil
}

// AddJob registers a job with optional branch metadata. Its container must already exist.
func (g *Graph) AddJob(job domain.Job, head *domain.BranchHead, primary bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if job.Name == "" {
		return fmt.Errorf("%w: job without name", domain.ErrGraphInvalid)
	}
	if _, exists := g.jobs[job.Name]; exists {
		return fmt.Errorf("%w: duplicate job %q", domain.ErrGraphInvalid, job.Name)
	}
	if job.Container != "" {
		if _, ok := g.containers[job.Container]; !ok {
			return fmt.Errorf("%w: job %q has unknown container %q", domain.ErrGraphInvalid, job.Name, job.Container)
		}
	}

	entry := &jobEntry{job: job, primary: primary}
	if head != nil {
		h := *head
		entry.head = &h
	}
	g.jobs[job.Name] = entry
	g.jobOrder = append(g.jobOrder, job.Name)
	return nil
}

// AddBuild appends a build to the history of its job. Build numbers must be
// strictly increasing within a job, which keeps every predecessor chain
// finite and strictly older.
func (g *Graph) AddBuild(build domain.Build) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.jobs[build.JobName]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrJobNotFound, build.JobName)
	}
	if build.Number <= 0 {
		return fmt.Errorf("%w: build of %q has invalid number %d", domain.ErrGraphInvalid, build.JobName, build.Number)
	}
	if n := len(entry.builds); n > 0 && entry.builds[n-1].Number >= build.Number {
		return fmt.Errorf("%w: build %d of %q is not newer than build %d",
			domain.ErrGraphInvalid, build.Number, build.JobName, entry.builds[n-1].Number)
	}
	if build.ID == "" {
		build.ID = domain.BuildID(build.JobName, build.Number)
	}
	if build.DisplayName == "" {
		build.DisplayName = fmt.Sprintf("#%d", build.Number)
	}
	if _, exists := g.builds[build.ID]; exists {
		return fmt.Errorf("%w: duplicate build %q", domain.ErrGraphInvalid, build.ID)
	}

	entry.builds = append(entry.builds, build)
	g.builds[build.ID] = buildRef{job: build.JobName, index: len(entry.builds) - 1}
	return nil
}

// Build returns a copy of the build with the given id.
func (g *Graph) Build(id string) (*domain.Build, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ref, ok := g.builds[id]
	if !ok {
		return nil, false
	}
	b := g.jobs[ref.job].builds[ref.index]
	return &b, true
}

// JobByName returns a copy of the job with the given full name.
func (g *Graph) JobByName(name string) (*domain.Job, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.jobs[name]
	if !ok {
		return nil, false
	}
	job := entry.job
	return &job, true
}

// Parent returns the container that directly owns the job.
func (g *Graph) Parent(job *domain.Job) (*domain.Container, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if job == nil || job.Container == "" {
		return nil, false
	}
	c, ok := g.containers[job.Container]
	if !ok {
		return nil, false
	}
	return &c, true
}

// ChildByBranchName returns the direct child job of container whose branch name
// equals branch exactly.
func (g *Graph) ChildByBranchName(container *domain.Container, branch string) (*domain.Job, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, name := range g.jobOrder {
		entry := g.jobs[name]
		if entry.job.Container != container.Name {
			continue
		}
		if entry.branchName() == branch {
			job := entry.job
			return &job, true
		}
	}
	return nil, false
}

// AllJobs returns the jobs of container and of all folders nested in it,
// in the order they were added.
func (g *Graph) AllJobs(container *domain.Container) []*domain.Job {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var jobs []*domain.Job
	for _, name := range g.jobOrder {
		entry := g.jobs[name]
		if g.isWithin(entry.job.Container, container.Name) {
			job := entry.job
			jobs = append(jobs, &job)
		}
	}
	return jobs
}

// isWithin reports whether container is root or nested inside root.
// Callers must hold the read lock.
func (g *Graph) isWithin(container, root string) bool {
	seen := make(map[string]struct{})
	for container != "" {
		if container == root {
			return true
		}
		if _, loop := seen[container]; loop {
			return false
		}
		seen[container] = struct{}{}
		container = g.containers[container].Parent
	}
	return false
}

// LastCompletedBuild returns the newest build of job that is not running.
func (g *Graph) LastCompletedBuild(job *domain.Job) (*domain.Build, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.jobs[job.Name]
	if !ok {
		return nil, false
	}
	return entry.completedBefore(len(entry.builds))
}

// LastBuild returns the newest build of job, running or not.
func (g *Graph) LastBuild(job *domain.Job) (*domain.Build, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.jobs[job.Name]
	if !ok || len(entry.builds) == 0 {
		return nil, false
	}
	b := entry.builds[len(entry.builds)-1]
	return &b, true
}

// PreviousCompletedBuild returns the newest completed build older than build.
func (g *Graph) PreviousCompletedBuild(build *domain.Build) (*domain.Build, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ref, ok := g.builds[build.ID]
	if !ok {
		return nil, false
	}
	return g.jobs[ref.job].completedBefore(ref.index)
}

// Head returns the branch head of the job.
func (g *Graph) Head(job *domain.Job) (domain.BranchHead, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.jobs[job.Name]
	if !ok || entry.head == nil {
		return domain.BranchHead{}, false
	}
	return *entry.head, true
}

// IsPrimary reports whether the job carries primary branch metadata.
func (g *Graph) IsPrimary(job *domain.Job) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.jobs[job.Name]
	return ok && entry.primary
}

// Stats returns the number of containers, jobs and builds.
func (g *Graph) Stats() (containers, jobs, builds int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.containers), len(g.jobs), len(g.builds)
}

func (e *jobEntry) completedBefore(index int) (*domain.Build, bool) {
	for i := index - 1; i >= 0; i-- {
		if !e.builds[i].Building {
			b := e.builds[i]
			return &b, true
		}
	}
	return nil, false
}

func (e *jobEntry) branchName() string {
	if e.head != nil && e.head.Name != "" {
		return e.head.Name
	}
	if e.job.DisplayName != "" {
		return e.job.DisplayName
	}
	return path.Base(e.job.Name)
}
