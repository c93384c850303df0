package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// Test mocks for dependency injection testing.

type mockLogger struct{}

func (m *mockLogger) Info(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Debug(_ context.Context, _ string, _ map[string]interface{})          {}
func (m *mockLogger) Warn(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Error(_ context.Context, _ string, _ error, _ map[string]interface{}) {}

type mockLoader struct {
	closeCalled bool
	closeOrder  *[]string
}

func (m *mockLoader) LoadGraph(_ context.Context) (domain.BuildGraph, error) {
	return nil, errors.New("not used")
}

func (m *mockLoader) Close() error {
	m.closeCalled = true
	if m.closeOrder != nil {
		*m.closeOrder = append(*m.closeOrder, "loader")
	}
	return nil
}

type mockMatcher struct {
	closeCalled bool
	closeOrder  *[]string
}

func (m *mockMatcher) IsRelated(_ context.Context, _, _ *domain.Build) (bool, error) {
	return true, nil
}

func (m *mockMatcher) Close() error {
	m.closeCalled = true
	if m.closeOrder != nil {
		*m.closeOrder = append(*m.closeOrder, "matcher")
	}
	return nil
}

type mockStore struct {
	closeCalled bool
	closeOrder  *[]string
}

func (m *mockStore) SaveReference(_ context.Context, _ domain.ReferenceBuild) error { return nil }

func (m *mockStore) FindReference(_ context.Context, id string) (*domain.ReferenceBuild, error) {
	return nil, fmt.Errorf("%w: %s", domain.ErrReferenceNotFound, id)
}

func (m *mockStore) Close() error {
	m.closeCalled = true
	if m.closeOrder != nil {
		*m.closeOrder = append(*m.closeOrder, "store")
	}
	return nil
}

type mockService struct {
	ref     domain.ReferenceBuild
	err     error
	job     string
	number  int
	cfg     domain.Configuration
	invoked bool
}

func (m *mockService) Resolve(_ context.Context, job string, number int, cfg domain.Configuration) (domain.ReferenceBuild, error) {
	m.invoked = true
	m.job, m.number, m.cfg = job, number, cfg
	return m.ref, m.err
}

func (m *mockService) Lookup(ctx context.Context, job string, number int, cfg domain.Configuration) (domain.ReferenceBuild, error) {
	return m.Resolve(ctx, job, number, cfg)
}

type mockServer struct {
	addr string
	err  error
}

func (m *mockServer) Run(_ context.Context, addr string) error {
	m.addr = addr
	return m.err
}

type mockOutputWriter struct {
	written      string
	json         bool
	trailWritten bool
	writeErr     error
}

func (m *mockOutputWriter) WriteReference(ref domain.ReferenceBuild) error {
	m.written = ref.ReferenceBuildIDOrPlaceholder()
	return m.writeErr
}

func (m *mockOutputWriter) WriteTrail(_ domain.ReferenceBuild) error {
	m.trailWritten = true
	return nil
}

// testEnv bundles the mocks behind a Dependencies value.
type testEnv struct {
	deps       *Dependencies
	cfg        *AppConfig
	loader     *mockLoader
	matcher    *mockMatcher
	store      *mockStore
	svc        *mockService
	server     *mockServer
	writer     *mockOutputWriter
	loaderCfg  *AppConfig
	matcherArg struct {
		path  string
		depth int
	}
	serverCfg domain.Configuration
	withStore bool
}

func newTestEnv() *testEnv {
	env := &testEnv{
		cfg: &AppConfig{
			Reference:  domain.NewConfiguration(),
			Store:      "none",
			RepoPath:   ".",
			Depth:      500,
			ListenAddr: ":8080",
		},
		loader:  &mockLoader{},
		matcher: &mockMatcher{},
		svc: &mockService{ref: domain.ReferenceBuild{
			OwnerJob:         "app",
			OwnerBuildID:     "app#4",
			ReferenceJob:     "main",
			ReferenceBuildID: "main#2",
		}},
		server: &mockServer{},
		writer: &mockOutputWriter{},
	}

	env.deps = &Dependencies{
		LoggerFactory: func() Logger { return &mockLogger{} },
		ConfigLoader: func() (*AppConfig, error) {
			cfg := *env.cfg
			return &cfg, nil
		},
		GraphLoaderFactory: func(cfg *AppConfig, _ Logger) (domain.GraphLoader, error) {
			env.loaderCfg = cfg
			return env.loader, nil
		},
		MatcherFactory: func(path string, depth int, _ Logger) (CommitMatcher, error) {
			env.matcherArg.path, env.matcherArg.depth = path, depth
			return env.matcher, nil
		},
		StoreFactory: func(_ *AppConfig, _ Logger) (domain.ReferenceStore, error) {
			if env.store == nil {
				return nil, nil
			}
			return env.store, nil
		},
		ServiceFactory: func(_ domain.GraphLoader, _ domain.CommitMatcher, store domain.ReferenceStore, _ Logger) ReferenceService {
			env.withStore = store != nil
			return env.svc
		},
		ServerFactory: func(_ ReferenceService, cfg domain.Configuration, _ Logger) Server {
			env.serverCfg = cfg
			return env.server
		},
		OutputWriterFactory: func(asJSON bool) domain.OutputWriter {
			env.writer.json = asJSON
			return env.writer
		},
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	}
	return env
}

func (env *testEnv) run(args ...string) error {
	cmd := NewRootCmdWithDeps(env.deps)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestNewRootCmd(t *testing.T) {
	SetDefaultDependencies(&Dependencies{})
	cmd := NewRootCmd()

	require.NotNil(t, cmd)
	assert.Equal(t, "reference-find <job> <build-number>", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.True(t, cmd.SilenceUsage)

	depthFlag := cmd.PersistentFlags().Lookup("depth")
	require.NotNil(t, depthFlag)
	assert.Equal(t, "d", depthFlag.Shorthand)
	assert.Equal(t, "0", depthFlag.DefValue)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	for _, name := range []string{"target-branch", "reference-job", "required-result", "consider-running", "latest-if-not-found", "repo", "graph"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	for _, name := range []string{"persist", "json"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serveCmd.Name())
	assert.NotNil(t, serveCmd.Flags().Lookup("addr"))
}

func TestNewRootCmd_Args(t *testing.T) {
	cmd := NewRootCmdWithDeps(&Dependencies{})

	assert.Error(t, cmd.Args(cmd, []string{}))
	assert.NoError(t, cmd.Args(cmd, []string{"app#4"}))
	assert.NoError(t, cmd.Args(cmd, []string{"app", "4"}))
	assert.Error(t, cmd.Args(cmd, []string{"app", "4", "5"}))
}

func TestNewRootCmd_HelpOutput(t *testing.T) {
	cmd := NewRootCmdWithDeps(&Dependencies{})

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "reference-find")
	assert.Contains(t, buf.String(), "--target-branch")
}

func TestRunResolve_Success(t *testing.T) {
	// Arrange
	env := newTestEnv()

	// Act
	err := env.run("app", "4")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "main#2", env.writer.written)
	assert.False(t, env.writer.json)
	assert.False(t, env.writer.trailWritten)
	assert.Equal(t, "app", env.svc.job)
	assert.Equal(t, 4, env.svc.number)
	assert.Equal(t, domain.NewConfiguration(), env.svc.cfg)
	assert.Equal(t, ".", env.matcherArg.path)
	assert.Equal(t, 500, env.matcherArg.depth)
	assert.False(t, env.withStore)
	assert.True(t, env.loader.closeCalled)
	assert.True(t, env.matcher.closeCalled)
}

func TestRunResolve_BuildID(t *testing.T) {
	// Arrange
	env := newTestEnv()

	// Act
	err := env.run("project/PR-7#12")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "project/PR-7", env.svc.job)
	assert.Equal(t, 12, env.svc.number)
	assert.Equal(t, "main#2", env.writer.written)
}

func TestRunResolve_FlagsOverrideConfiguration(t *testing.T) {
	// Arrange
	env := newTestEnv()
	env.cfg.Reference.SetTargetBranch("develop")
	env.cfg.Reference.SetConsiderRunningBuild(true)

	// Act
	err := env.run("project/PR-7", "12",
		"--target-branch", "release",
		"--required-result", "SUCCESS",
		"--latest-if-not-found",
		"--repo", "/src/project",
		"--depth", "50",
		"--graph", "graph.yaml",
		"--json",
	)

	// Assert
	require.NoError(t, err)

	want := domain.NewConfiguration()
	want.SetTargetBranch("release")
	want.SetRequiredResult(domain.ResultSuccess)
	want.SetConsiderRunningBuild(true)
	want.SetLatestBuildIfNotFound(true)
	assert.Equal(t, want, env.svc.cfg)

	assert.Equal(t, "/src/project", env.matcherArg.path)
	assert.Equal(t, 50, env.matcherArg.depth)
	require.NotNil(t, env.loaderCfg)
	assert.Equal(t, "graph.yaml", env.loaderCfg.GraphFile)
	assert.True(t, env.writer.json)
}

func TestRunResolve_Verbose(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	env := newTestEnv()

	err := env.run("app", "4", "-v")

	require.NoError(t, err)
	assert.True(t, env.writer.trailWritten)
	assert.Equal(t, "debug", os.Getenv("LOG_LEVEL"))
}

func TestRunResolve_Persist(t *testing.T) {
	t.Run("store is opened and closed", func(t *testing.T) {
		env := newTestEnv()
		env.store = &mockStore{}

		err := env.run("app", "4", "--persist")

		require.NoError(t, err)
		assert.True(t, env.withStore)
		assert.True(t, env.store.closeCalled)
	})

	t.Run("collaborators close in reverse opening order", func(t *testing.T) {
		env := newTestEnv()
		var order []string
		env.loader = &mockLoader{closeOrder: &order}
		env.matcher = &mockMatcher{closeOrder: &order}
		env.store = &mockStore{closeOrder: &order}

		err := env.run("app", "4", "--persist")

		require.NoError(t, err)
		assert.Equal(t, []string{"store", "matcher", "loader"}, order)
	})

	t.Run("store is not opened without --persist", func(t *testing.T) {
		env := newTestEnv()
		env.store = &mockStore{}

		err := env.run("app", "4")

		require.NoError(t, err)
		assert.False(t, env.withStore)
		assert.False(t, env.store.closeCalled)
	})

	t.Run("no store configured", func(t *testing.T) {
		env := newTestEnv()

		err := env.run("app", "4", "--persist")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "--persist requires a reference store")
		assert.False(t, env.svc.invoked)
	})
}

func TestRunResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		mutate  func(env *testEnv)
		wantErr string
		wantIs  error
	}{
		{
			name:    "non numeric build number",
			args:    []string{"app", "latest"},
			wantErr: `invalid build number "latest"`,
		},
		{
			name:    "zero build number",
			args:    []string{"app", "0"},
			wantErr: `invalid build number "0"`,
		},
		{
			name:    "build id without number",
			args:    []string{"app"},
			wantErr: "invalid build",
			wantIs:  domain.ErrInvalidBuildID,
		},
		{
			name:    "build id with zero number",
			args:    []string{"app#0"},
			wantErr: "invalid build",
			wantIs:  domain.ErrInvalidBuildID,
		},
		{
			name:    "nil dependencies",
			args:    []string{"app", "4"},
			mutate:  func(env *testEnv) { env.deps = nil },
			wantErr: "dependencies not configured",
		},
		{
			name: "configuration error",
			args: []string{"app", "4"},
			mutate: func(env *testEnv) {
				env.deps.ConfigLoader = func() (*AppConfig, error) {
					return nil, errors.New("vault unavailable")
				}
			},
			wantErr: "configuration error: vault unavailable",
		},
		{
			name:    "invalid required result",
			args:    []string{"app", "4", "--required-result", "GREEN"},
			wantErr: "invalid --required-result",
			wantIs:  domain.ErrInvalidResult,
		},
		{
			name: "graph loader error",
			args: []string{"app", "4"},
			mutate: func(env *testEnv) {
				env.deps.GraphLoaderFactory = func(_ *AppConfig, _ Logger) (domain.GraphLoader, error) {
					return nil, errors.New("connection refused")
				}
			},
			wantErr: "build graph error: connection refused",
		},
		{
			name: "not a git repository",
			args: []string{"app", "4", "--repo", "/tmp/nothing"},
			mutate: func(env *testEnv) {
				env.deps.MatcherFactory = func(_ string, _ int, _ Logger) (CommitMatcher, error) {
					return nil, domain.ErrRepositoryNotFound
				}
			},
			wantErr: "not a git repository: /tmp/nothing",
		},
		{
			name: "store factory error",
			args: []string{"app", "4", "--persist"},
			mutate: func(env *testEnv) {
				env.deps.StoreFactory = func(_ *AppConfig, _ Logger) (domain.ReferenceStore, error) {
					return nil, errors.New("redis down")
				}
			},
			wantErr: "reference store error: redis down",
		},
		{
			name: "unknown build",
			args: []string{"app", "4"},
			mutate: func(env *testEnv) {
				env.svc.err = fmt.Errorf("%w: app#4", domain.ErrBuildNotFound)
			},
			wantErr: "build app#4 not found",
		},
		{
			name: "resolution error",
			args: []string{"app", "4"},
			mutate: func(env *testEnv) {
				env.svc.err = errors.New("clickhouse down")
			},
			wantErr: "clickhouse down",
		},
		{
			name: "output error",
			args: []string{"app", "4"},
			mutate: func(env *testEnv) {
				env.writer.writeErr = errors.New("broken pipe")
			},
			wantErr: "output error: broken pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			env := newTestEnv()
			if tt.mutate != nil {
				tt.mutate(env)
			}

			// Act
			err := env.run(tt.args...)

			// Assert
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestRunResolve_ClosesLoaderWhenMatcherFails(t *testing.T) {
	env := newTestEnv()
	env.deps.MatcherFactory = func(_ string, _ int, _ Logger) (CommitMatcher, error) {
		return nil, errors.New("boom")
	}

	err := env.run("app", "4")

	require.Error(t, err)
	assert.True(t, env.loader.closeCalled)
}

func TestRunServe(t *testing.T) {
	// Arrange
	env := newTestEnv()
	env.store = &mockStore{}

	// Act
	err := env.run("serve", "--addr", "127.0.0.1:9090", "--required-result", "FAILURE")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", env.server.addr)
	assert.True(t, env.withStore)
	assert.True(t, env.store.closeCalled)

	want := domain.NewConfiguration()
	want.SetRequiredResult(domain.ResultFailure)
	assert.Equal(t, want, env.serverCfg)
}

func TestRunServe_DefaultAddress(t *testing.T) {
	env := newTestEnv()

	err := env.run("serve")

	require.NoError(t, err)
	assert.Equal(t, ":8080", env.server.addr)
	assert.False(t, env.withStore)
}

func TestRunServe_ServerError(t *testing.T) {
	env := newTestEnv()
	env.server.err = errors.New("address already in use")

	err := env.run("serve")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}

func TestWriteWarningf(t *testing.T) {
	var buf bytes.Buffer

	writeWarningf(&buf, "warning: %s\n", "careful")

	assert.Equal(t, "warning: careful\n", buf.String())
}
