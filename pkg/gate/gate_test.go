package gate

import (
	"context"
	"testing"

	"github.com/relkit/relkit/pkg/config"
	"github.com/relkit/relkit/pkg/executor"
	"github.com/relkit/relkit/pkg/project"
	"github.com/relkit/relkit/pkg/testcap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner serves the lint check.
type fakeRunner struct {
	result executor.Result
	err    error
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, _ executor.Command) (executor.Result, error) {
	f.calls++
	return f.result, f.err
}

// fakeTests serves the test check.
type fakeTests struct {
	resolveErr error
	outcome    testcap.Outcome
	runErr     error
	runCalls   int
}

func (f *fakeTests) Resolve(_ context.Context, _ project.Profile) ([]testcap.Candidate, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return []testcap.Candidate{{FrameworkID: "fake", RunCommand: []string{"fake"}}}, nil
}

func (f *fakeTests) Run(_ context.Context, _ testcap.Candidate, _ config.Automation, _ bool) (testcap.Outcome, error) {
	f.runCalls++
	return f.outcome, f.runErr
}

// genericProfile sidesteps the lint check (no lint command for generic
// projects) so tests can focus on test-step policy.
func genericProfile() project.Profile {
	return project.Profile{EcosystemKind: project.KindGeneric}
}

func newGate(cfg config.Automation, runner *fakeRunner, tests *fakeTests) *Gate {
	return New("/tmp/repo", genericProfile(), cfg, runner, tests)
}

func findCheck(t *testing.T, result Result, name string) Check {
	t.Helper()
	for _, c := range result.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found in %+v", name, result.Checks)
	return Check{}
}

func TestRun_AcceptsWhenAllChecksPass(t *testing.T) {
	tests := &fakeTests{outcome: testcap.Outcome{Passed: true}}
	g := newGate(config.Defaults(), &fakeRunner{}, tests)

	result := g.Run(context.Background(), Request{Message: "feat: x"})

	assert.Equal(t, StateAccepted, result.State)
	assert.True(t, result.Accepted())
	assert.Equal(t, RejectedByNone, result.RejectedBy)
	assert.Equal(t, StateAccepted, g.State())
}

func TestRun_TestFailureRejectsInStrictMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Testing.StrictMode = true
	tests := &fakeTests{outcome: testcap.Outcome{Passed: false, FailedCount: 3}}
	g := newGate(cfg, &fakeRunner{}, tests)

	result := g.Run(context.Background(), Request{Message: "feat: x"})

	assert.Equal(t, StateRejected, result.State)
	assert.Equal(t, RejectedByTests, result.RejectedBy)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "3 test(s) failed")
}

func TestRun_TestFailureReportedButAcceptedInFlexibleMode(t *testing.T) {
	tests := &fakeTests{outcome: testcap.Outcome{Passed: false, FailedCount: 1}}
	g := newGate(config.Defaults(), &fakeRunner{}, tests)

	result := g.Run(context.Background(), Request{Message: "fix: y"})

	assert.Equal(t, StateAccepted, result.State)
	check := findCheck(t, result, "tests")
	assert.False(t, check.Passed)
	assert.Contains(t, check.Detail, "not enforced")
}

func TestRun_StrictTestsFlagOverridesFlexibleConfig(t *testing.T) {
	tests := &fakeTests{outcome: testcap.Outcome{Passed: false, FailedCount: 1}}
	g := newGate(config.Defaults(), &fakeRunner{}, tests)

	result := g.Run(context.Background(), Request{Message: "fix: y", StrictTests: true})

	assert.Equal(t, StateRejected, result.State)
	assert.Equal(t, RejectedByTests, result.RejectedBy)
}

func TestRun_NoFrameworkRejectsInStrictMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Testing.StrictMode = true
	tests := &fakeTests{resolveErr: testcap.ErrNoTestFramework}
	g := newGate(cfg, &fakeRunner{}, tests)

	result := g.Run(context.Background(), Request{Message: "feat: x"})

	assert.Equal(t, StateRejected, result.State)
	assert.Equal(t, RejectedByTests, result.RejectedBy)
	check := findCheck(t, result, "tests")
	assert.Contains(t, check.Detail, "no test framework detected")
}

func TestRun_NoFrameworkSkipsInFlexibleMode(t *testing.T) {
	tests := &fakeTests{resolveErr: testcap.ErrNoTestFramework}
	g := newGate(config.Defaults(), &fakeRunner{}, tests)

	result := g.Run(context.Background(), Request{Message: "feat: x"})

	assert.Equal(t, StateAccepted, result.State)
	check := findCheck(t, result, "tests")
	assert.True(t, check.Skipped)
	assert.Contains(t, check.Detail, "tests unavailable")
}

func TestRun_BypassSkipsTestsButIsRecorded(t *testing.T) {
	cfg := config.Defaults()
	cfg.Testing.StrictMode = true // bypass wins over strict
	tests := &fakeTests{outcome: testcap.Outcome{Passed: false}}
	g := newGate(cfg, &fakeRunner{}, tests)

	result := g.Run(context.Background(), Request{Message: "feat: x", SkipTests: true})

	assert.Equal(t, StateAccepted, result.State)
	assert.True(t, result.Bypassed)
	assert.Zero(t, tests.runCalls, "bypass must not run tests at all")
	check := findCheck(t, result, "tests")
	assert.True(t, check.Skipped)
	assert.Contains(t, check.Detail, "bypassed")
}

func TestRun_TestingDisabledSkipsTestStep(t *testing.T) {
	cfg := config.Defaults()
	cfg.Testing.Enabled = false
	tests := &fakeTests{}
	g := newGate(cfg, &fakeRunner{}, tests)

	result := g.Run(context.Background(), Request{Message: "feat: x"})

	assert.Equal(t, StateAccepted, result.State)
	assert.Zero(t, tests.runCalls)
	check := findCheck(t, result, "tests")
	assert.True(t, check.Skipped)
}

func TestRun_TimeoutDetailIsExplicit(t *testing.T) {
	cfg := config.Defaults()
	cfg.Testing.StrictMode = true
	tests := &fakeTests{outcome: testcap.Outcome{Passed: false, TimedOut: true}}
	g := newGate(cfg, &fakeRunner{}, tests)

	result := g.Run(context.Background(), Request{Message: "feat: x"})

	assert.Equal(t, StateRejected, result.State)
	check := findCheck(t, result, "tests")
	assert.Contains(t, check.Detail, "timed out")
}

func TestRun_GenericProfileSkipsLint(t *testing.T) {
	tests := &fakeTests{outcome: testcap.Outcome{Passed: true}}
	runner := &fakeRunner{}
	g := newGate(config.Defaults(), runner, tests)

	result := g.Run(context.Background(), Request{Message: "feat: x"})

	check := findCheck(t, result, "lint")
	assert.True(t, check.Skipped)
	assert.Zero(t, runner.calls)
}

func TestRun_StateIsTerminal(t *testing.T) {
	tests := &fakeTests{outcome: testcap.Outcome{Passed: true}}
	g := newGate(config.Defaults(), &fakeRunner{}, tests)

	assert.Equal(t, StateIdle, g.State())
	result := g.Run(context.Background(), Request{Message: "feat: x"})
	assert.Equal(t, result.State, g.State())
}
