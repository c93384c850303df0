// Package cmd provides the CLI commands for reference-find.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// Logger defines the logging interface used by the commands.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// CommitMatcher is a domain.CommitMatcher holding resources.
type CommitMatcher interface {
	domain.CommitMatcher
	Close() error
}

// ReferenceService resolves and looks up reference builds.
type ReferenceService interface {
	Resolve(ctx context.Context, jobName string, number int, cfg domain.Configuration) (domain.ReferenceBuild, error)
	Lookup(ctx context.Context, jobName string, number int, cfg domain.Configuration) (domain.ReferenceBuild, error)
}

// Server serves reference resolution over HTTP.
type Server interface {
	Run(ctx context.Context, addr string) error
}

// Dependencies holds all injectable dependencies for the commands.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance.
	LoggerFactory func() Logger

	// ConfigLoader loads application configuration.
	ConfigLoader func() (*AppConfig, error)

	// GraphLoaderFactory creates the build graph source for the given config.
	GraphLoaderFactory func(cfg *AppConfig, log Logger) (domain.GraphLoader, error)

	// MatcherFactory creates a CommitMatcher for the repository at path.
	MatcherFactory func(path string, depth int, log Logger) (CommitMatcher, error)

	// StoreFactory creates the configured ReferenceStore.
	// It returns nil when no store is configured.
	StoreFactory func(cfg *AppConfig, log Logger) (domain.ReferenceStore, error)

	// ServiceFactory creates a ReferenceService with the given dependencies.
	// store may be nil.
	ServiceFactory func(
		loader domain.GraphLoader,
		matcher domain.CommitMatcher,
		store domain.ReferenceStore,
		log Logger,
	) ReferenceService

	// ServerFactory creates the HTTP server of the serve command.
	ServerFactory func(svc ReferenceService, cfg domain.Configuration, log Logger) Server

	// OutputWriterFactory creates an OutputWriter, emitting JSON when asJSON is set.
	OutputWriterFactory func(asJSON bool) domain.OutputWriter

	// Stdout is the writer for standard output (for the reference build id).
	Stdout io.Writer

	// Stderr is the writer for standard error (for warnings/errors).
	Stderr io.Writer
}

// AppConfig holds application configuration loaded by ConfigLoader.
type AppConfig struct {
	// Reference holds the reference settings; command-line flags override them.
	Reference domain.Configuration

	// Database is the database name.
	Database string

	// Store is the reference store backend (clickhouse, redis, none).
	Store string

	// GraphFile is a build graph snapshot; empty means ClickHouse.
	GraphFile string

	// RepoPath is the Git repository used to compare commits.
	RepoPath string

	// Depth is the maximum commit ancestry depth.
	Depth int

	// ListenAddr is the address of the HTTP server.
	ListenAddr string

	// RedisURL is the Redis connection URL of the redis store.
	RedisURL string

	// ReferenceTTL is how long the redis store keeps a reference.
	ReferenceTTL time.Duration

	// GraphTTL is how long serve reuses a graph loaded from ClickHouse.
	GraphTTL time.Duration

	// RetryAttempts, RetryDelay and RetryMaxDelay control graph loading retries.
	RetryAttempts uint
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// LogLevel is the log level setting.
	LogLevel string

	// LogAppName is the application name for logging.
	LogAppName string
}

// options holds the command-line flags.
type options struct {
	targetBranch     string
	referenceJob     string
	requiredResult   string
	considerRunning  bool
	latestIfNotFound bool
	repo             string
	depth            int
	graph            string
	persist          bool
	json             bool
	addr             string
	verbose          bool
}

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for reference-find.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "reference-find <job> <build-number> | <job>#<build-number>",
		Short: "Find the reference build of a CI build",
		Long: `reference-find finds the reference build of a build: a completed build of
the target branch job whose result is good enough and whose commits are part
of the history of the build.

For builds of a multi-branch project the target branch is taken from the
--target-branch flag, the pull request target, the primary branch, or
'master', in that order. An explicit --reference-job bypasses the inference.

On success, it outputs only the reference build id (or '-' when none was
found) to stdout. With --verbose the resolution trail is written to stderr.

Examples:
  # Resolve the reference build of build 42 of a pull request job
  reference-find project/PR-17 42

  # The same build addressed by its id
  reference-find 'project/PR-17#42'

  # Compare against the develop branch and require a successful build
  reference-find project/PR-17 42 --target-branch develop --required-result SUCCESS

  # Resolve against a graph snapshot and store the outcome
  reference-find project/PR-17 42 --graph graph.yaml --persist -v`,
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args, deps, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.targetBranch, "target-branch", "",
		"Target branch to compare against, overriding inference")
	flags.StringVar(&opts.referenceJob, "reference-job", "",
		"Full name of the job to use as reference, bypassing target branch inference")
	flags.StringVar(&opts.requiredResult, "required-result", "",
		"Worst acceptable result of a reference build (SUCCESS, UNSTABLE, FAILURE, ABORTED, NOT_BUILT)")
	flags.BoolVar(&opts.considerRunning, "consider-running", false,
		"Allow a still running build as the first candidate")
	flags.BoolVar(&opts.latestIfNotFound, "latest-if-not-found", false,
		"Fall back to the latest build of the reference job when no build matches")
	flags.StringVar(&opts.repo, "repo", "",
		"Path of the Git repository used to compare commits (default from REFERENCE_FIND_REPO)")
	flags.IntVarP(&opts.depth, "depth", "d", 0,
		"Maximum commit ancestry depth when comparing commits (default from REFERENCE_FIND_DEPTH)")
	flags.StringVar(&opts.graph, "graph", "",
		"Build graph snapshot file (YAML or JSON) used instead of ClickHouse")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable verbose/debug logging and print the resolution trail")

	rootCmd.Flags().BoolVar(&opts.persist, "persist", false,
		"Store the outcome in the configured reference store")
	rootCmd.Flags().BoolVar(&opts.json, "json", false,
		"Write the outcome as JSON, including the resolution trail")

	rootCmd.AddCommand(newServeCmd(deps, opts))

	return rootCmd
}

func newServeCmd(deps *Dependencies, opts *options) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reference resolution over HTTP",
		Long: `serve exposes reference resolution over HTTP:

  GET  /healthz
  GET  /jobs/{job}/builds/{number}/reference   stored reference, resolved if missing
  POST /jobs/{job}/builds/{number}/reference   always resolve again, store only if none is stored

Job names must be path-escaped (project%2FPR-17).`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, deps, opts)
		},
	}

	serveCmd.Flags().StringVar(&opts.addr, "addr", "",
		"Listen address (default from REFERENCE_FIND_ADDR)")

	return serveCmd
}

// session holds the collaborators shared by both commands.
type session struct {
	log     Logger
	cfg     *AppConfig
	loader  domain.GraphLoader
	matcher CommitMatcher
	store   domain.ReferenceStore
	svc     ReferenceService
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// buildArgs reads the build either as "<job> <number>" or as a single
// "<job>#<number>" id.
func buildArgs(args []string) (string, int, error) {
	if len(args) == 1 {
		jobName, number, err := domain.ParseBuildID(args[0])
		if err != nil {
			return "", 0, fmt.Errorf("invalid build: %w", err)
		}
		return jobName, number, nil
	}

	number, err := strconv.Atoi(args[1])
	if err != nil || number <= 0 {
		return "", 0, fmt.Errorf("invalid build number %q", args[1])
	}
	return args[0], number, nil
}

// close releases collaborators in the reverse order they were opened.
func (s *session) close(ctx context.Context) {
	var closers []namedCloser
	if s.loader != nil {
		closers = append(closers, namedCloser{"build graph loader", s.loader})
	}
	if s.matcher != nil {
		closers = append(closers, namedCloser{"commit matcher", s.matcher})
	}
	if s.store != nil {
		closers = append(closers, namedCloser{"reference store", s.store})
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].closer.Close(); err != nil {
			s.log.Warn(ctx, "failed to close "+closers[i].name, map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// openSession loads the configuration, applies flag overrides and creates
// every collaborator. withStore controls whether the reference store is opened.
func openSession(ctx context.Context, cmd *cobra.Command, deps *Dependencies, opts *options, withStore bool) (*session, error) {
	if deps == nil {
		return nil, errors.New("dependencies not configured")
	}

	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Set log level based on verbose flag (best-effort)
	if opts.verbose {
		if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
			writeWarningf(stderr, "warning: could not set log level: %v\n", err)
		}
	}

	s := &session{log: deps.LoggerFactory()}

	cfg, err := deps.ConfigLoader()
	if err != nil {
		s.log.Error(ctx, "failed to load configuration", err, nil)
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := applyFlags(cmd, opts, cfg); err != nil {
		return nil, err
	}
	s.cfg = cfg

	s.loader, err = deps.GraphLoaderFactory(cfg, s.log)
	if err != nil {
		s.log.Error(ctx, "failed to initialize build graph loader", err, nil)
		return nil, fmt.Errorf("build graph error: %w", err)
	}

	s.matcher, err = deps.MatcherFactory(cfg.RepoPath, cfg.Depth, s.log)
	if err != nil {
		s.close(ctx)
		s.log.Error(ctx, "failed to open git repository", err, map[string]interface{}{
			"path": cfg.RepoPath,
		})
		if errors.Is(err, domain.ErrRepositoryNotFound) {
			return nil, fmt.Errorf("not a git repository: %s", cfg.RepoPath)
		}
		return nil, err
	}

	if withStore {
		s.store, err = deps.StoreFactory(cfg, s.log)
		if err != nil {
			s.close(ctx)
			s.log.Error(ctx, "failed to initialize reference store", err, map[string]interface{}{
				"store": cfg.Store,
			})
			return nil, fmt.Errorf("reference store error: %w", err)
		}
	}

	s.svc = deps.ServiceFactory(s.loader, s.matcher, s.store, s.log)
	return s, nil
}

// applyFlags overrides the loaded configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, opts *options, cfg *AppConfig) error {
	flags := cmd.Flags()

	if flags.Changed("target-branch") {
		cfg.Reference.SetTargetBranch(opts.targetBranch)
	}
	if flags.Changed("reference-job") {
		cfg.Reference.SetReferenceJob(opts.referenceJob)
	}
	if flags.Changed("required-result") {
		result, err := domain.ParseResult(opts.requiredResult)
		if err != nil {
			return fmt.Errorf("invalid --required-result: %w", err)
		}
		cfg.Reference.SetRequiredResult(result)
	}
	if flags.Changed("consider-running") {
		cfg.Reference.SetConsiderRunningBuild(opts.considerRunning)
	}
	if flags.Changed("latest-if-not-found") {
		cfg.Reference.SetLatestBuildIfNotFound(opts.latestIfNotFound)
	}
	if flags.Changed("repo") {
		cfg.RepoPath = opts.repo
	}
	if flags.Changed("depth") {
		cfg.Depth = opts.depth
	}
	if flags.Changed("graph") {
		cfg.GraphFile = opts.graph
	}
	if flags.Changed("addr") {
		cfg.ListenAddr = opts.addr
	}
	if cfg.RepoPath == "" {
		cfg.RepoPath = "."
	}
	return nil
}

// runResolve executes the reference resolution with injected dependencies.
func runResolve(cmd *cobra.Command, args []string, deps *Dependencies, opts *options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	jobName, number, err := buildArgs(args)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cmd, deps, opts, opts.persist)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if opts.persist && s.store == nil {
		return errors.New("--persist requires a reference store; set REFERENCE_FIND_STORE")
	}

	s.log.Info(ctx, "starting reference-find", map[string]interface{}{
		"job":     jobName,
		"build":   number,
		"graph":   s.cfg.GraphFile,
		"repo":    s.cfg.RepoPath,
		"verbose": opts.verbose,
	})

	ref, err := s.svc.Resolve(ctx, jobName, number, s.cfg.Reference)
	if err != nil {
		s.log.Error(ctx, "failed to resolve reference build", err, nil)
		if errors.Is(err, domain.ErrBuildNotFound) {
			return fmt.Errorf("build %s not found", domain.BuildID(jobName, number))
		}
		return err
	}

	// Write reference build id to stdout
	writer := deps.OutputWriterFactory(opts.json)
	if err := writer.WriteReference(ref); err != nil {
		s.log.Error(ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	if opts.verbose {
		if err := writer.WriteTrail(ref); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}

	s.log.Info(ctx, "reference resolution complete", map[string]interface{}{
		"build":     ref.OwnerBuildID,
		"reference": ref.ReferenceBuildIDOrPlaceholder(),
		"persisted": opts.persist,
	})

	return nil
}

// runServe runs the HTTP server until the command context is cancelled.
func runServe(cmd *cobra.Command, deps *Dependencies, opts *options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, cmd, deps, opts, true)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	server := deps.ServerFactory(s.svc, s.cfg.Reference, s.log)
	if err := server.Run(ctx, s.cfg.ListenAddr); err != nil {
		s.log.Error(ctx, "server failed", err, map[string]interface{}{
			"addr": s.cfg.ListenAddr,
		})
		return err
	}
	return nil
}

// Execute runs the root command until it completes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// writeWarningf writes a warning message to the given writer.
// This is a best-effort operation; errors are intentionally ignored
// because there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		return
	}
}
