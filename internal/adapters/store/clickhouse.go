// Package store provides adapters for build graph and reference storage backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	ch "github.com/MyCarrier-DevOps/goLibMyCarrier/clickhouse"
	"github.com/avast/retry-go/v4"

	"github.com/MyCarrier-DevOps/reference-find/internal/adapters/graph"
	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// Logger defines the logging interface for the store adapters.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// Rows is the subset of driver.Rows used by the store.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Conn is the subset of a ClickHouse connection used by the store.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

// Session is the subset of a goLibMyCarrier ClickHouse session used by the store.
type Session interface {
	QueryWithArgs(ctx context.Context, query string, args ...any) (driver.Rows, error)
	ExecWithArgs(ctx context.Context, query string, args ...any) error
	Close() error
}

// OpenClickHouse opens a ClickHouse session with the shared connection
// settings (address, credentials, TLS) and verifies the connection.
func OpenClickHouse(ctx context.Context, cfg *ch.ClickhouseConfig) (Conn, error) {
	session, err := ch.NewClickhouseSession(cfg, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse session: %w", err)
	}
	return WrapSession(session), nil
}

// WrapSession adapts a ClickHouse session to Conn.
func WrapSession(session Session) Conn {
	return &sessionConn{session: session}
}

type sessionConn struct {
	session Session
}

func (c *sessionConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.session.QueryWithArgs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *sessionConn) Exec(ctx context.Context, query string, args ...any) error {
	return c.session.ExecWithArgs(ctx, query, args...)
}

func (c *sessionConn) Close() error {
	return c.session.Close()
}

// RetryOptions controls how often a graph load is attempted.
type RetryOptions struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryOptions are used when a zero RetryOptions is given.
var DefaultRetryOptions = RetryOptions{
	Attempts: 3,
	Delay:    500 * time.Millisecond,
	MaxDelay: 5 * time.Second,
}

// ClickHouseGraphLoader loads the build graph from the containers, jobs and
// builds tables of a ClickHouse database.
type ClickHouseGraphLoader struct {
	conn     Conn
	database string
	retry    RetryOptions
	logger   Logger
	cacheTTL time.Duration
	now      func() time.Time

	mu       sync.Mutex
	cached   *graph.Graph
	loadedAt time.Time
}

var _ domain.GraphLoader = (*ClickHouseGraphLoader)(nil)

// NewClickHouseGraphLoader creates a loader reading from database.
func NewClickHouseGraphLoader(conn Conn, database string, opts RetryOptions, log Logger) *ClickHouseGraphLoader {
	if opts.Attempts == 0 {
		opts = DefaultRetryOptions
	}
	return &ClickHouseGraphLoader{
		conn:     conn,
		database: database,
		retry:    opts,
		logger:   log,
		now:      time.Now,
	}
}

// WithCacheTTL makes LoadGraph hand out the last loaded graph until it is
// older than ttl. Zero disables caching.
func (l *ClickHouseGraphLoader) WithCacheTTL(ttl time.Duration) *ClickHouseGraphLoader {
	l.cacheTTL = ttl
	return l
}

// LoadGraph reads the whole build graph. Transient query failures are
// retried with exponential backoff; an invalid graph is not.
// Concurrent callers share a single load.
func (l *ClickHouseGraphLoader) LoadGraph(ctx context.Context) (domain.BuildGraph, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil && l.now().Sub(l.loadedAt) < l.cacheTTL {
		return l.cached, nil
	}

	var g *graph.Graph

	err := retry.Do(
		func() error {
			loaded, err := l.load(ctx)
			if err != nil {
				return err
			}
			g = loaded
			return nil
		},
		retry.Attempts(l.retry.Attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(l.retry.Delay),
		retry.MaxDelay(l.retry.MaxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			l.logger.Warn(ctx, "retrying build graph load", map[string]interface{}{
				"attempt": n + 1,
				"error":   err.Error(),
			})
		}),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}

	containers, jobs, builds := g.Stats()
	l.logger.Debug(ctx, "loaded build graph", map[string]interface{}{
		"database":   l.database,
		"containers": containers,
		"jobs":       jobs,
		"builds":     builds,
	})

	if l.cacheTTL > 0 {
		l.cached = g
		l.loadedAt = l.now()
	}
	return g, nil
}

func isTransient(err error) bool {
	return !errors.Is(err, domain.ErrGraphInvalid) &&
		!errors.Is(err, domain.ErrInvalidResult) &&
		!errors.Is(err, domain.ErrJobNotFound)
}

func (l *ClickHouseGraphLoader) load(ctx context.Context) (*graph.Graph, error) {
	var snapshot graph.Snapshot

	containers, err := l.loadContainers(ctx)
	if err != nil {
		return nil, err
	}
	snapshot.Containers = containers

	jobs, index, err := l.loadJobs(ctx)
	if err != nil {
		return nil, err
	}

	if err := l.loadBuilds(ctx, jobs, index); err != nil {
		return nil, err
	}
	snapshot.Jobs = jobs

	return snapshot.Build()
}

func (l *ClickHouseGraphLoader) loadContainers(ctx context.Context) ([]domain.Container, error) {
	query := fmt.Sprintf("SELECT name, parent, multi_branch FROM %s.containers ORDER BY name", l.database)
	rows, err := l.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query containers: %w", err)
	}
	defer rows.Close()

	var containers []domain.Container
	for rows.Next() {
		var c domain.Container
		if err := rows.Scan(&c.Name, &c.Parent, &c.MultiBranch); err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		containers = append(containers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read containers: %w", err)
	}
	return containers, nil
}

func (l *ClickHouseGraphLoader) loadJobs(ctx context.Context) ([]graph.SnapshotJob, map[string]int, error) {
	query := fmt.Sprintf(
		"SELECT name, display_name, container, is_primary, head_name, head_target FROM %s.jobs ORDER BY name",
		l.database,
	)
	rows, err := l.conn.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []graph.SnapshotJob
	index := make(map[string]int)
	for rows.Next() {
		var (
			job        graph.SnapshotJob
			headName   string
			headTarget string
		)
		if err := rows.Scan(&job.Name, &job.DisplayName, &job.Container, &job.Primary, &headName, &headTarget); err != nil {
			return nil, nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if headName != "" {
			job.Head = &domain.BranchHead{Name: headName, Target: headTarget}
		}
		index[job.Name] = len(jobs)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read jobs: %w", err)
	}
	return jobs, index, nil
}

func (l *ClickHouseGraphLoader) loadBuilds(ctx context.Context, jobs []graph.SnapshotJob, index map[string]int) error {
	query := fmt.Sprintf(
		"SELECT job_name, toInt64(number), display_name, result, building, commit FROM %s.builds ORDER BY job_name, number",
		l.database,
	)
	rows, err := l.conn.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			jobName string
			number  int64
			build   graph.SnapshotBuild
		)
		if err := rows.Scan(&jobName, &number, &build.DisplayName, &build.Result, &build.Building, &build.Commit); err != nil {
			return fmt.Errorf("failed to scan build: %w", err)
		}
		i, ok := index[jobName]
		if !ok {
			return fmt.Errorf("%w: build %d references unknown job %q", domain.ErrGraphInvalid, number, jobName)
		}
		build.Number = int(number)
		jobs[i].Builds = append(jobs[i].Builds, build)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read builds: %w", err)
	}
	return nil
}

// Close releases the ClickHouse connection.
func (l *ClickHouseGraphLoader) Close() error {
	return l.conn.Close()
}

// ClickHouseReferenceStore persists resolved reference builds in ClickHouse.
type ClickHouseReferenceStore struct {
	conn     Conn
	database string
	now      func() time.Time
}

var _ domain.ReferenceStore = (*ClickHouseReferenceStore)(nil)

// NewClickHouseReferenceStore creates a store writing to database.reference_builds.
func NewClickHouseReferenceStore(conn Conn, database string) *ClickHouseReferenceStore {
	return &ClickHouseReferenceStore{
		conn:     conn,
		database: database,
		now:      time.Now,
	}
}

// Migrate creates the reference_builds table if it does not exist.
func (s *ClickHouseReferenceStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.reference_builds (
	owner_job String,
	owner_build_id String,
	reference_job String,
	reference_build_id String,
	messages Array(String),
	resolved_at DateTime64(3)
) ENGINE = MergeTree
ORDER BY (owner_build_id, resolved_at)`, s.database)

	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create reference_builds table: %w", err)
	}
	return nil
}

// SaveReference inserts the reference build. FindReference always returns
// the first row of an originating build, so later rows never replace it.
func (s *ClickHouseReferenceStore) SaveReference(ctx context.Context, ref domain.ReferenceBuild) error {
	query := fmt.Sprintf(
		"INSERT INTO %s.reference_builds (owner_job, owner_build_id, reference_job, reference_build_id, messages, resolved_at) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		s.database,
	)
	messages := ref.Messages
	if messages == nil {
		messages = []string{}
	}
	err := s.conn.Exec(ctx, query,
		ref.OwnerJob, ref.OwnerBuildID, ref.ReferenceJob, ref.ReferenceBuildID, messages, s.now())
	if err != nil {
		return fmt.Errorf("failed to save reference of %s: %w", ref.OwnerBuildID, err)
	}
	return nil
}

// FindReference returns the first stored reference of the originating build.
func (s *ClickHouseReferenceStore) FindReference(ctx context.Context, ownerBuildID string) (*domain.ReferenceBuild, error) {
	query := fmt.Sprintf(
		"SELECT owner_job, owner_build_id, reference_job, reference_build_id, messages FROM %s.reference_builds "+
			"WHERE owner_build_id = ? ORDER BY resolved_at ASC LIMIT 1",
		s.database,
	)
	rows, err := s.conn.Query(ctx, query, ownerBuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference of %s: %w", ownerBuildID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read reference of %s: %w", ownerBuildID, err)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrReferenceNotFound, ownerBuildID)
	}

	var ref domain.ReferenceBuild
	if err := rows.Scan(&ref.OwnerJob, &ref.OwnerBuildID, &ref.ReferenceJob, &ref.ReferenceBuildID, &ref.Messages); err != nil {
		return nil, fmt.Errorf("failed to scan reference of %s: %w", ownerBuildID, err)
	}
	return &ref, nil
}

// Close releases the ClickHouse connection.
func (s *ClickHouseReferenceStore) Close() error {
	return s.conn.Close()
}
