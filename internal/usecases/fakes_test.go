package usecases

import (
	"context"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// mockLogger implements the Logger interface for testing.
type mockLogger struct{}

func (m *mockLogger) Info(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Debug(_ context.Context, _ string, _ map[string]interface{})          {}
func (m *mockLogger) Warn(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Error(_ context.Context, _ string, _ error, _ map[string]interface{}) {}

// fakeGraph implements domain.BuildGraph with plain maps.
type fakeGraph struct {
	jobs          map[string]*domain.Job
	containers    map[string]*domain.Container
	order         []string
	lastCompleted map[string]*domain.Build
	last          map[string]*domain.Build
	previous      map[string]*domain.Build
	heads         map[string]domain.BranchHead
	primary       map[string]bool
	builds        map[string]*domain.Build
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		jobs:          map[string]*domain.Job{},
		containers:    map[string]*domain.Container{},
		lastCompleted: map[string]*domain.Build{},
		last:          map[string]*domain.Build{},
		previous:      map[string]*domain.Build{},
		heads:         map[string]domain.BranchHead{},
		primary:       map[string]bool{},
		builds:        map[string]*domain.Build{},
	}
}

func (g *fakeGraph) addContainer(name string, multiBranch bool) *domain.Container {
	c := &domain.Container{Name: name, MultiBranch: multiBranch}
	g.containers[name] = c
	return c
}

func (g *fakeGraph) addJob(container, branch string) *domain.Job {
	name := branch
	if container != "" {
		name = container + "/" + branch
	}
	job := &domain.Job{Name: name, DisplayName: branch, Container: container}
	g.jobs[name] = job
	g.order = append(g.order, name)
	return job
}

func (g *fakeGraph) setHead(job *domain.Job, head domain.BranchHead) {
	g.heads[job.Name] = head
}

func (g *fakeGraph) setPrimary(job *domain.Job) {
	g.primary[job.Name] = true
}

// completed registers a completed build as the last completed build of job.
func (g *fakeGraph) completed(job *domain.Job, id string, result domain.Result) *domain.Build {
	build := &domain.Build{ID: id, JobName: job.Name, DisplayName: id, Result: result}
	g.builds[id] = build
	g.lastCompleted[job.Name] = build
	g.last[job.Name] = build
	return build
}

// running registers a running build as the last build of job.
func (g *fakeGraph) running(job *domain.Job, id string, result domain.Result) *domain.Build {
	build := &domain.Build{ID: id, JobName: job.Name, DisplayName: id, Result: result, Building: true}
	g.builds[id] = build
	g.last[job.Name] = build
	return build
}

// chain links build to its previous completed build.
func (g *fakeGraph) chain(build *domain.Build, id string, result domain.Result) *domain.Build {
	prev := &domain.Build{ID: id, JobName: build.JobName, DisplayName: id, Result: result}
	g.builds[id] = prev
	g.previous[build.ID] = prev
	return prev
}

func (g *fakeGraph) JobByName(name string) (*domain.Job, bool) {
	job, ok := g.jobs[name]
	return job, ok
}

func (g *fakeGraph) Parent(job *domain.Job) (*domain.Container, bool) {
	c, ok := g.containers[job.Container]
	return c, ok
}

func (g *fakeGraph) ChildByBranchName(container *domain.Container, branch string) (*domain.Job, bool) {
	job, ok := g.jobs[container.Name+"/"+branch]
	return job, ok
}

func (g *fakeGraph) AllJobs(container *domain.Container) []*domain.Job {
	var jobs []*domain.Job
	for _, name := range g.order {
		if g.jobs[name].Container == container.Name {
			jobs = append(jobs, g.jobs[name])
		}
	}
	return jobs
}

func (g *fakeGraph) LastCompletedBuild(job *domain.Job) (*domain.Build, bool) {
	b, ok := g.lastCompleted[job.Name]
	return b, ok
}

func (g *fakeGraph) LastBuild(job *domain.Job) (*domain.Build, bool) {
	b, ok := g.last[job.Name]
	return b, ok
}

func (g *fakeGraph) PreviousCompletedBuild(build *domain.Build) (*domain.Build, bool) {
	b, ok := g.previous[build.ID]
	return b, ok
}

func (g *fakeGraph) Head(job *domain.Job) (domain.BranchHead, bool) {
	h, ok := g.heads[job.Name]
	return h, ok
}

func (g *fakeGraph) IsPrimary(job *domain.Job) bool {
	return g.primary[job.Name]
}

func (g *fakeGraph) Build(id string) (*domain.Build, bool) {
	b, ok := g.builds[id]
	return b, ok
}

// fakeMatcher implements domain.CommitMatcher. Builds are related unless listed.
type fakeMatcher struct {
	unrelated map[string]bool
	errs      map[string]error
	calls     []string
}

func (m *fakeMatcher) IsRelated(_ context.Context, candidate, _ *domain.Build) (bool, error) {
	m.calls = append(m.calls, candidate.ID)
	if err := m.errs[candidate.ID]; err != nil {
		return false, err
	}
	return !m.unrelated[candidate.ID], nil
}

// multiBranchFixture builds the standard topology: a multi-branch project with
// the job of the current build and returns the current build.
func multiBranchFixture(g *fakeGraph) (*domain.Container, *domain.Job, *domain.Build) {
	project := g.addContainer("project", true)
	job := g.addJob("project", "PR-1")
	build := &domain.Build{ID: "project/PR-1#1", JobName: job.Name, Number: 1, Building: true}
	g.builds[build.ID] = build
	g.last[job.Name] = build
	return project, job, build
}

// pullRequestFixture adds a pull request head targeting "pr-target" whose last
// completed build is "pr-id".
func pullRequestFixture(g *fakeGraph, job *domain.Job) *domain.Build {
	g.setHead(job, domain.BranchHead{Name: "PR-1", Target: "pr-target"})
	target := g.addJob("project", "pr-target")
	return g.completed(target, "pr-id", domain.ResultSuccess)
}
