package testcap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/relkit/relkit/pkg/config"
	"github.com/relkit/relkit/pkg/executor"
	"github.com/relkit/relkit/pkg/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records the command it was asked to run and returns a canned
// result.
type fakeRunner struct {
	lastCmd executor.Command
	result  executor.Result
	err     error
}

func (f *fakeRunner) Run(_ context.Context, cmd executor.Command) (executor.Result, error) {
	f.lastCmd = cmd
	return f.result, f.err
}

func newResolver(t *testing.T, root string, runner executor.Runner) *Resolver {
	t.Helper()
	r := NewResolver(root, runner)
	r.lookPath = func(string) bool { return true }
	return r
}

func goProfile() project.Profile {
	return project.Profile{EcosystemKind: project.KindGo, ManifestPath: "go.mod"}
}

func TestResolve_GoProject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module m"), 0o644))

	r := newResolver(t, dir, &fakeRunner{})
	candidates, err := r.Resolve(context.Background(), goProfile())
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "go-test", candidates[0].FrameworkID)
	assert.Equal(t, []string{"go", "test", "./..."}, candidates[0].RunCommand)
}

func TestResolve_PriorityOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module m"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gotestsum.yaml"), []byte(""), 0o644))

	r := newResolver(t, dir, &fakeRunner{})
	candidates, err := r.Resolve(context.Background(), goProfile())
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, "gotestsum", candidates[0].FrameworkID, "primary framework is the highest-priority match")
	assert.Equal(t, "go-test", candidates[1].FrameworkID)
}

func TestResolve_MissingBinaryIsSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module m"), 0o644))

	r := NewResolver(dir, &fakeRunner{})
	r.lookPath = func(string) bool { return false }

	_, err := r.Resolve(context.Background(), goProfile())
	assert.True(t, errors.Is(err, ErrNoTestFramework))
}

func TestResolve_GenericProfile(t *testing.T) {
	r := newResolver(t, t.TempDir(), &fakeRunner{})

	_, err := r.Resolve(context.Background(), project.Profile{EcosystemKind: project.KindGeneric})
	assert.True(t, errors.Is(err, ErrNoTestFramework))
}

func TestResolve_NoMarkers(t *testing.T) {
	r := newResolver(t, t.TempDir(), &fakeRunner{})

	_, err := r.Resolve(context.Background(), goProfile())
	assert.True(t, errors.Is(err, ErrNoTestFramework))
}

func TestRun_Passed(t *testing.T) {
	runner := &fakeRunner{result: executor.Result{ExitCode: 0, Stdout: "ok\n"}}
	r := newResolver(t, t.TempDir(), runner)

	outcome, err := r.Run(context.Background(), Candidate{
		FrameworkID: "go-test",
		RunCommand:  []string{"go", "test", "./..."},
	}, config.Defaults(), false)

	require.NoError(t, err)
	assert.True(t, outcome.Passed)
	assert.Zero(t, outcome.FailedCount)
	assert.False(t, outcome.TimedOut)
	assert.Equal(t, "go", runner.lastCmd.Name)
}

func TestRun_FailureCountsFailedTests(t *testing.T) {
	raw := "--- FAIL: TestA\n--- FAIL: TestB\nFAIL\n"
	runner := &fakeRunner{result: executor.Result{ExitCode: 1, Stdout: raw}}
	r := newResolver(t, t.TempDir(), runner)

	outcome, err := r.Run(context.Background(), Candidate{
		FrameworkID: "go-test",
		RunCommand:  []string{"go", "test", "./..."},
	}, config.Defaults(), false)

	require.NoError(t, err)
	assert.False(t, outcome.Passed)
	assert.Equal(t, 2, outcome.FailedCount)
}

func TestRun_FailureWithUnrecognizedOutputFloorsAtOne(t *testing.T) {
	runner := &fakeRunner{result: executor.Result{ExitCode: 1, Stdout: "something broke"}}
	r := newResolver(t, t.TempDir(), runner)

	outcome, err := r.Run(context.Background(), Candidate{
		FrameworkID: "npm-test",
		RunCommand:  []string{"npm", "test"},
	}, config.Defaults(), false)

	require.NoError(t, err)
	assert.Equal(t, 1, outcome.FailedCount)
}

func TestRun_TimeoutIsDistinguishedFromFailure(t *testing.T) {
	runner := &fakeRunner{result: executor.Result{ExitCode: -1, TimedOut: true}}
	r := newResolver(t, t.TempDir(), runner)

	outcome, err := r.Run(context.Background(), Candidate{
		FrameworkID: "go-test",
		RunCommand:  []string{"go", "test", "./..."},
	}, config.Defaults(), false)

	require.NoError(t, err)
	assert.False(t, outcome.Passed)
	assert.True(t, outcome.TimedOut)
	assert.Zero(t, outcome.FailedCount)
}

func TestRun_ParsesCoverage(t *testing.T) {
	raw := "ok \texample \t0.01s\tcoverage: 83.4% of statements\n"
	runner := &fakeRunner{result: executor.Result{ExitCode: 0, Stdout: raw}}
	r := newResolver(t, t.TempDir(), runner)

	outcome, err := r.Run(context.Background(), Candidate{
		FrameworkID:     "go-test",
		RunCommand:      []string{"go", "test", "./..."},
		CoverageCommand: []string{"go", "test", "-cover", "./..."},
	}, config.Defaults(), true)

	require.NoError(t, err)
	assert.True(t, outcome.HasCoverage)
	assert.InDelta(t, 83.4, outcome.CoveragePercent, 0.001)
	assert.Equal(t, []string{"test", "-cover", "./..."}, runner.lastCmd.Args)
}

func TestRun_ConfiguredCommandOverridesCandidate(t *testing.T) {
	runner := &fakeRunner{result: executor.Result{ExitCode: 0}}
	r := newResolver(t, t.TempDir(), runner)

	cfg := config.Defaults()
	cfg.Testing.Command = []string{"make", "check"}

	_, err := r.Run(context.Background(), Candidate{
		FrameworkID: "go-test",
		RunCommand:  []string{"go", "test", "./..."},
	}, cfg, false)

	require.NoError(t, err)
	assert.Equal(t, "make", runner.lastCmd.Name)
	assert.Equal(t, []string{"check"}, runner.lastCmd.Args)
}

// TestRun_FreshProfileRunsPrimaryFramework walks the whole chain a real
// invocation takes: persist a detected profile, load the merged config, then
// resolve and run. The merged config must not displace the primary framework
// the resolver selected, and a coverage run must keep its coverage flags.
func TestRun_FreshProfileRunsPrimaryFramework(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module m"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gotestsum.yaml"), []byte(""), 0o644))

	profile := goProfile()
	profile.DetectedAt = time.Now().Add(time.Minute)

	store := config.NewStore(dir)
	require.NoError(t, store.Persist(profile))
	cfg, warnings := store.Load(context.Background(), config.Layer{})
	require.Empty(t, warnings)

	runner := &fakeRunner{result: executor.Result{ExitCode: 0}}
	r := newResolver(t, dir, runner)

	candidates, err := r.Resolve(context.Background(), profile)
	require.NoError(t, err)
	require.Equal(t, "gotestsum", candidates[0].FrameworkID)

	_, err = r.Run(context.Background(), candidates[0], cfg, false)
	require.NoError(t, err)
	assert.Equal(t, "gotestsum", runner.lastCmd.Name)
	assert.Equal(t, []string{"--", "./..."}, runner.lastCmd.Args)

	_, err = r.Run(context.Background(), candidates[0], cfg, true)
	require.NoError(t, err)
	assert.Contains(t, runner.lastCmd.Args, "-coverprofile=coverage.out")
}

func TestRun_PassesConfiguredTimeout(t *testing.T) {
	runner := &fakeRunner{result: executor.Result{ExitCode: 0}}
	r := newResolver(t, t.TempDir(), runner)

	cfg := config.Defaults()
	cfg.Timeouts.TestRun = 42 * time.Second

	_, err := r.Run(context.Background(), Candidate{
		FrameworkID: "go-test",
		RunCommand:  []string{"go", "test", "./..."},
	}, cfg, false)

	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, runner.lastCmd.Timeout)
}
