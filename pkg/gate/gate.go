// Package gate enforces commit-time quality checks: a synchronous, ordered
// pipeline of a lint/format check and an optional test run, ending in an
// accept or reject decision. The gate runs each check at most once per
// attempt; the caller re-invokes after fixing issues.
package gate

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/relkit/relkit/pkg/config"
	"github.com/relkit/relkit/pkg/executor"
	"github.com/relkit/relkit/pkg/logger"
	"github.com/relkit/relkit/pkg/project"
	"github.com/relkit/relkit/pkg/testcap"
)

// State is the gate's position in its lifecycle.
type State string

// Gate states. Accepted and Rejected are terminal.
const (
	StateIdle     State = "idle"
	StateChecking State = "checking"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
)

// RejectedBy names the check that rejected a commit, which drives the CLI
// exit code.
type RejectedBy string

// Rejection sources.
const (
	RejectedByNone  RejectedBy = ""
	RejectedByLint  RejectedBy = "lint"
	RejectedByTests RejectedBy = "tests"
)

// Request is one commit attempt.
type Request struct {
	Message     string
	StrictTests bool // treat any test problem as a rejection
	SkipTests   bool // bypass the test step entirely; always recorded, never silent
}

// Check is the record of one executed (or skipped) check.
type Check struct {
	Name    string
	Passed  bool
	Skipped bool
	Detail  string
}

// Result is the terminal outcome of one commit attempt.
type Result struct {
	State      State
	RejectedBy RejectedBy
	Bypassed   bool
	Checks     []Check
	Err        error
}

// Accepted reports whether the commit may proceed.
func (r Result) Accepted() bool {
	return r.State == StateAccepted
}

// testRunner is the slice of the test capability resolver the gate needs.
type testRunner interface {
	Resolve(ctx context.Context, profile project.Profile) ([]testcap.Candidate, error)
	Run(ctx context.Context, candidate testcap.Candidate, cfg config.Automation, withCoverage bool) (testcap.Outcome, error)
}

// Gate evaluates commit attempts against one project profile and config.
type Gate struct {
	root    string
	profile project.Profile
	cfg     config.Automation
	runner  executor.Runner
	tests   testRunner

	state State
}

// New creates a Gate. The profile and config are passed by value and fixed
// for the gate's lifetime; re-detection builds a new gate.
func New(root string, profile project.Profile, cfg config.Automation, runner executor.Runner, tests testRunner) *Gate {
	return &Gate{
		root:    root,
		profile: profile,
		cfg:     cfg,
		runner:  runner,
		tests:   tests,
		state:   StateIdle,
	}
}

// State returns the gate's current lifecycle state.
func (g *Gate) State() State {
	return g.state
}

// Run evaluates one commit attempt. It always transitions through Checking,
// even under bypass, and lands in a terminal state.
func (g *Gate) Run(ctx context.Context, req Request) Result {
	g.state = StateChecking
	log := logger.G(ctx).WithField("ecosystem", g.profile.EcosystemKind)
	log.Debug("commit gate checking")

	result := Result{Bypassed: req.SkipTests}
	var failures *multierror.Error

	lint := g.runLintCheck(ctx)
	result.Checks = append(result.Checks, lint)
	if !lint.Passed && !lint.Skipped {
		// lint failures reject in every mode
		failures = multierror.Append(failures, errors.Errorf("lint: %s", lint.Detail))
		result.RejectedBy = RejectedByLint
	}

	test := g.runTestCheck(ctx, req)
	result.Checks = append(result.Checks, test.check)
	if test.rejected {
		failures = multierror.Append(failures, test.err)
		if result.RejectedBy == RejectedByNone {
			result.RejectedBy = RejectedByTests
		}
	}

	if result.RejectedBy != RejectedByNone {
		g.state = StateRejected
		result.State = StateRejected
		result.Err = failures.ErrorOrNil()
		log.WithField("rejectedBy", result.RejectedBy).Debug("commit gate rejected")
		return result
	}

	g.state = StateAccepted
	result.State = StateAccepted
	log.Debug("commit gate accepted")
	return result
}

type testCheckOutcome struct {
	check    Check
	rejected bool
	err      error
}

func (g *Gate) runTestCheck(ctx context.Context, req Request) testCheckOutcome {
	// bypass wins over strict: the step is skipped outright, but the bypass
	// is recorded and surfaced, never silent
	if req.SkipTests {
		return testCheckOutcome{check: Check{
			Name:    "tests",
			Skipped: true,
			Detail:  "bypassed by --skip-tests",
		}}
	}

	if !g.cfg.Testing.Enabled {
		return testCheckOutcome{check: Check{
			Name:    "tests",
			Skipped: true,
			Detail:  "testing disabled by configuration",
		}}
	}

	strict := g.cfg.Testing.StrictMode || req.StrictTests

	candidates, err := g.tests.Resolve(ctx, g.profile)
	if err != nil {
		if errors.Is(err, testcap.ErrNoTestFramework) {
			if strict {
				return testCheckOutcome{
					check:    Check{Name: "tests", Detail: "no test framework detected"},
					rejected: true,
					err:      err,
				}
			}
			return testCheckOutcome{check: Check{
				Name:    "tests",
				Skipped: true,
				Detail:  "no test framework detected, tests unavailable",
			}}
		}
		return testCheckOutcome{
			check:    Check{Name: "tests", Detail: err.Error()},
			rejected: true,
			err:      err,
		}
	}

	outcome, err := g.tests.Run(ctx, candidates[0], g.cfg, false)
	if err != nil {
		return testCheckOutcome{
			check:    Check{Name: "tests", Detail: err.Error()},
			rejected: true,
			err:      err,
		}
	}

	if outcome.Passed {
		return testCheckOutcome{check: Check{Name: "tests", Passed: true}}
	}

	detail := "test run failed"
	if outcome.TimedOut {
		detail = "test run timed out"
	} else if outcome.FailedCount > 0 {
		detail = errors.Errorf("%d test(s) failed", outcome.FailedCount).Error()
	}

	if strict {
		return testCheckOutcome{
			check:    Check{Name: "tests", Detail: detail},
			rejected: true,
			err:      errors.New(detail),
		}
	}

	// flexible mode: the failure is reported but does not reject
	return testCheckOutcome{check: Check{
		Name:   "tests",
		Passed: false,
		Detail: detail + " (not enforced in flexible mode)",
	}}
}

// runLintCheck shells out to the ecosystem's formatter/linter. A missing
// linter skips the check with a visible notice; it never rejects.
func (g *Gate) runLintCheck(ctx context.Context) Check {
	adapter := project.Lookup(g.profile.EcosystemKind)
	if len(adapter.LintCommand) == 0 {
		return Check{Name: "lint", Skipped: true, Detail: "no lint check for this ecosystem"}
	}

	if !executor.LookPath(adapter.LintCommand[0]) {
		return Check{Name: "lint", Skipped: true, Detail: adapter.LintCommand[0] + " not installed"}
	}

	result, err := g.runner.Run(ctx, executor.Command{
		Name:    adapter.LintCommand[0],
		Args:    adapter.LintCommand[1:],
		Dir:     g.root,
		Timeout: g.cfg.Timeouts.Step,
	})
	if err != nil {
		return Check{Name: "lint", Skipped: true, Detail: "lint tool could not run: " + err.Error()}
	}

	// gofmt -l exits zero and lists offending files on stdout
	listsFiles := adapter.LintCommand[0] == "gofmt" && strings.TrimSpace(result.Stdout) != ""
	if result.ExitCode != 0 || result.TimedOut || listsFiles {
		detail := strings.TrimSpace(result.Stdout + result.Stderr)
		if detail == "" {
			detail = "lint check failed"
		}
		return Check{Name: "lint", Detail: detail}
	}

	return Check{Name: "lint", Passed: true}
}
