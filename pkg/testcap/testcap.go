// Package testcap discovers which test tooling a detected project can
// actually run and exposes a uniform run/parse contract over it. Discovery is
// a fixed ordered probe per ecosystem; absence of any framework is a
// reportable condition, not a failure, and callers decide how strictly to
// treat it.
package testcap

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/relkit/relkit/pkg/config"
	"github.com/relkit/relkit/pkg/executor"
	"github.com/relkit/relkit/pkg/logger"
	"github.com/relkit/relkit/pkg/project"
)

// ErrNoTestFramework reports that no usable test framework was found for the
// detected ecosystem. Strict policy treats it as a failure; flexible policy
// treats it as "tests unavailable".
var ErrNoTestFramework = errors.New("no test framework detected")

// Candidate is one usable test framework, ready to run.
type Candidate struct {
	FrameworkID     string
	RunCommand      []string
	CoverageCommand []string
}

// Outcome is the uniform result of one test run.
type Outcome struct {
	Passed          bool
	FailedCount     int
	CoveragePercent float64
	HasCoverage     bool
	TimedOut        bool
	Raw             string
}

// Resolver probes for and runs test frameworks.
type Resolver struct {
	root     string
	runner   executor.Runner
	lookPath func(string) bool
}

// NewResolver creates a Resolver for the given repository root.
func NewResolver(root string, runner executor.Runner) *Resolver {
	return &Resolver{
		root:     root,
		runner:   runner,
		lookPath: executor.LookPath,
	}
}

// Resolve returns every usable framework for the profile's ecosystem in the
// ecosystem's fixed priority order. The first candidate is the primary one;
// the rest run only on explicit request. Zero candidates is
// ErrNoTestFramework.
func (r *Resolver) Resolve(ctx context.Context, profile project.Profile) ([]Candidate, error) {
	if profile.IsGeneric() {
		return nil, errors.Wrap(ErrNoTestFramework, "generic project offers no test tooling")
	}

	adapter := project.Lookup(profile.EcosystemKind)

	var candidates []Candidate
	for _, fw := range adapter.Frameworks {
		if !r.markerPresent(fw) {
			continue
		}
		if fw.RequiredBinary != "" && !r.lookPath(fw.RequiredBinary) {
			logger.G(ctx).WithField("framework", fw.ID).Debug("framework configured but binary missing")
			continue
		}
		candidates = append(candidates, Candidate{
			FrameworkID:     fw.ID,
			RunCommand:      fw.RunCommand,
			CoverageCommand: fw.CoverageCommand,
		})
	}

	if len(candidates) == 0 {
		return nil, errors.Wrapf(ErrNoTestFramework, "no framework usable for %s project", profile.EcosystemKind)
	}

	return candidates, nil
}

func (r *Resolver) markerPresent(fw project.Framework) bool {
	for _, glob := range fw.MarkerGlobs {
		matches, err := doublestar.FilepathGlob(filepath.Join(r.root, glob))
		if err == nil && len(matches) > 0 {
			return true
		}
	}
	return false
}

// Run invokes the candidate as an opaque blocking operation bounded by the
// configured timeout. A configured per-ecosystem command overrides the
// candidate's own. Timeouts produce a failed outcome with TimedOut set,
// distinguishing them from assertion failures.
func (r *Resolver) Run(ctx context.Context, candidate Candidate, cfg config.Automation, withCoverage bool) (Outcome, error) {
	command := candidate.RunCommand
	if withCoverage && len(candidate.CoverageCommand) > 0 {
		command = candidate.CoverageCommand
	}
	if len(cfg.Testing.Command) > 0 {
		command = cfg.Testing.Command
	}
	if len(command) == 0 {
		return Outcome{}, errors.Errorf("candidate %s has no run command", candidate.FrameworkID)
	}

	result, err := r.runner.Run(ctx, executor.Command{
		Name:    command[0],
		Args:    command[1:],
		Dir:     r.root,
		Timeout: cfg.Timeouts.TestRun,
	})
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "failed to invoke %s", candidate.FrameworkID)
	}

	raw := result.Stdout
	if result.Stderr != "" {
		raw += result.Stderr
	}

	outcome := Outcome{
		Passed:   result.ExitCode == 0 && !result.TimedOut,
		TimedOut: result.TimedOut,
		Raw:      raw,
	}
	if !outcome.Passed && !outcome.TimedOut {
		outcome.FailedCount = countFailures(raw)
	}
	if pct, ok := parseCoverage(raw); ok {
		outcome.CoveragePercent = pct
		outcome.HasCoverage = true
	}

	return outcome, nil
}

var failLinePattern = regexp.MustCompile(`(?m)^\s*(?:--- FAIL|FAILED|✗)`)

// countFailures estimates how many test cases failed from the runner output.
// Tool output is freeform; when nothing matches a known failure line the
// count floors at one, since the non-zero exit already proved a failure.
func countFailures(raw string) int {
	count := len(failLinePattern.FindAllString(raw, -1))
	if count == 0 {
		return 1
	}
	return count
}

var coveragePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// parseCoverage extracts the last percentage figure from the output, which is
// where go test, pytest-cov, and the jest/vitest summary place the total.
func parseCoverage(raw string) (float64, bool) {
	matches := coveragePattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return 0, false
	}

	last := matches[len(matches)-1][1]
	pct, err := strconv.ParseFloat(strings.TrimSpace(last), 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}
