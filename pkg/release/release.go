// Package release drives the multi-step release pipeline: verify the tree is
// clean, compute the version bump, run tests, check coverage, generate the
// changelog, then tag, push, and publish. Everything before the tag is
// repeatable and aborts cleanly; the tag and everything after are
// irreversible and only ever reported, never rolled back.
package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/relkit/relkit/pkg/config"
	"github.com/relkit/relkit/pkg/executor"
	"github.com/relkit/relkit/pkg/gitx"
	"github.com/relkit/relkit/pkg/logger"
	"github.com/relkit/relkit/pkg/project"
	"github.com/relkit/relkit/pkg/semrel"
	"github.com/relkit/relkit/pkg/testcap"
)

// ErrCoverageBelowThreshold reports coverage under the configured floor.
var ErrCoverageBelowThreshold = errors.New("coverage below configured threshold")

// ErrTestFailure reports a failing test run during the pipeline.
var ErrTestFailure = errors.New("test run failed")

// ErrPublishFailure reports a failed publish. It occurs after the
// irreversible tag/push and is surfaced with remediation instructions, never
// retried automatically.
var ErrPublishFailure = errors.New("publish failed")

// ChangelogFileName is the file the changelog is prepended to on success.
const ChangelogFileName = "CHANGELOG.md"

// VCS is the version-control capability the pipeline consumes.
type VCS interface {
	IsClean() (bool, error)
	LatestVersionTag() (string, *semver.Version, error)
	CommitsSince(tag string) ([]semrel.Commit, error)
	CreateTag(name, message string) error
	Push(ctx context.Context) error
}

// testRunner is the slice of the test capability resolver the pipeline needs.
type testRunner interface {
	Resolve(ctx context.Context, profile project.Profile) ([]testcap.Candidate, error)
	Run(ctx context.Context, candidate testcap.Candidate, cfg config.Automation, withCoverage bool) (testcap.Outcome, error)
}

// locker is the per-repository exclusion the pipeline acquires before its
// first step and releases on terminal state.
type locker interface {
	Acquire() error
	Release() error
}

// Options configure one release attempt.
type Options struct {
	// Bump, when not BumpNone, overrides the computed bump level.
	Bump semrel.Bump
	// DryRun stops before the first irreversible step.
	DryRun bool
	// CoverageReport requests a coverage-collecting test run.
	CoverageReport bool
}

// Outcome is the terminal result of one release attempt.
type Outcome struct {
	Plan         *Plan
	Version      *semver.Version
	TagName      string
	Changelog    string
	NoOp         bool
	DryRun       bool
	FailedStep   string
	Irreversible bool // failure happened after an irreversible step completed
	Err          error
}

// Succeeded reports whether the attempt ended without a failed step.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Orchestrator runs release attempts for one repository. It is
// single-threaded and cooperative: each step runs to completion before the
// next starts, and cancellation is honored only at step boundaries.
type Orchestrator struct {
	root    string
	profile project.Profile
	cfg     config.Automation
	vcs     VCS
	tests   testRunner
	runner  executor.Runner
	lock    locker
	now     func() time.Time
}

// New creates an Orchestrator. Profile and config are passed by value, the
// way the detector and store produced them.
func New(root string, profile project.Profile, cfg config.Automation, vcs VCS, tests testRunner, runner executor.Runner, lock locker) *Orchestrator {
	return &Orchestrator{
		root:    root,
		profile: profile,
		cfg:     cfg,
		vcs:     vcs,
		tests:   tests,
		runner:  runner,
		lock:    lock,
		now:     time.Now,
	}
}

// Run executes the pipeline. The returned Outcome's plan is the audit record
// of what ran.
func (o *Orchestrator) Run(ctx context.Context, opts Options) Outcome {
	plan := NewPlan()
	out := Outcome{Plan: plan, DryRun: opts.DryRun}
	log := logger.G(ctx).WithField("root", o.root)

	if err := o.lock.Acquire(); err != nil {
		return o.abort(out, StepVerifyClean, errors.Wrap(err, "failed to acquire repository lock"))
	}
	defer func() {
		if err := o.lock.Release(); err != nil {
			log.WithError(err).Warn("failed to release repository lock")
		}
	}()

	// verify-clean
	if err := o.checkCancelled(ctx); err != nil {
		return o.abort(out, StepVerifyClean, err)
	}
	clean, err := o.vcs.IsClean()
	if err != nil {
		return o.abort(out, StepVerifyClean, err)
	}
	if !clean {
		return o.abort(out, StepVerifyClean, gitx.ErrDirtyWorktree)
	}
	plan.Mark(StepVerifyClean, StatusDone, "")

	// compute-version
	if err := o.checkCancelled(ctx); err != nil {
		return o.abort(out, StepComputeVersion, err)
	}
	records, next, noOp, err := o.computeVersion(ctx, opts, &out)
	if err != nil {
		return o.abort(out, StepComputeVersion, err)
	}
	if noOp {
		// nothing to release is a success outcome, not a failure
		plan.SkipFrom(StepRunTests)
		out.NoOp = true
		log.Info("nothing to release")
		return out
	}
	out.Version = next
	out.TagName = semrel.TagName(next)
	plan.Mark(StepComputeVersion, StatusDone, out.TagName)

	// run-tests, coverage
	if err := o.checkCancelled(ctx); err != nil {
		return o.abort(out, StepRunTests, err)
	}
	if err := o.runTests(ctx, opts, plan); err != nil {
		step := StepRunTests
		if errors.Is(err, ErrCoverageBelowThreshold) {
			step = StepCoverage
		}
		return o.abort(out, step, err)
	}

	// changelog text is pure; the CHANGELOG.md write happens only after the
	// irreversible tail succeeded
	out.Changelog = semrel.Changelog(next, o.now(), records)
	plan.Mark(StepChangelog, StatusDone, "")

	if err := o.checkCancelled(ctx); err != nil {
		return o.abort(out, StepTag, err)
	}
	if opts.DryRun {
		plan.SkipFrom(StepTag)
		log.WithField("tag", out.TagName).Info("dry run, stopping before tag creation")
		return out
	}
	if !o.cfg.Release.AutoTag {
		plan.SkipFrom(StepTag)
		plan.Mark(StepTag, StatusSkipped, "autoTag disabled")
		return out
	}

	// tag: the point of no return. A CreateTag error leaves no tag behind,
	// so it still aborts cleanly.
	if err := o.vcs.CreateTag(out.TagName, "release "+out.TagName); err != nil {
		return o.abort(out, StepTag, err)
	}
	plan.Mark(StepTag, StatusDone, out.TagName)

	// push
	if err := o.vcs.Push(ctx); err != nil {
		return o.fail(out, StepPush, err)
	}
	plan.Mark(StepPush, StatusDone, "")

	// publish
	if err := o.publish(ctx, plan); err != nil {
		return o.fail(out, StepPublish, err)
	}

	if o.cfg.Release.AutoChangelog {
		if err := o.persistChangelog(out.Changelog); err != nil {
			log.WithError(err).Warn("failed to write changelog file")
		}
	}

	log.WithField("tag", out.TagName).Info("release complete")
	return out
}

func (o *Orchestrator) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "release cancelled")
	}
	return nil
}

// abort marks the failing step and leaves later steps pending. Every abort
// path runs before any irreversible effect, so the repository is untouched.
func (o *Orchestrator) abort(out Outcome, step string, err error) Outcome {
	out.Plan.Mark(step, StatusFailed, err.Error())
	out.FailedStep = step
	out.Err = err
	return out
}

// fail marks a failure after the point of no return. No rollback is
// attempted; the plan records the exact done/failed boundary for manual
// remediation.
func (o *Orchestrator) fail(out Outcome, step string, err error) Outcome {
	out.Plan.Mark(step, StatusFailed, err.Error())
	out.FailedStep = step
	out.Irreversible = out.Plan.PassedPointOfNoReturn()
	out.Err = err
	return out
}

// computeVersion reads history since the last release tag and decides the
// next version. It reports noOp when there is nothing to release or the
// range is not release-worthy.
func (o *Orchestrator) computeVersion(ctx context.Context, opts Options, out *Outcome) ([]semrel.CommitRecord, *semver.Version, bool, error) {
	tag, current, err := o.vcs.LatestVersionTag()
	if err != nil {
		return nil, nil, false, err
	}
	if current == nil {
		// first release bumps from the zero version
		current = semver.New(0, 0, 0, "", "")
	}

	commits, err := o.vcs.CommitsSince(tag)
	if err != nil {
		return nil, nil, false, err
	}
	if len(commits) == 0 {
		out.Plan.Mark(StepComputeVersion, StatusDone, "no commits since "+displayTag(tag))
		return nil, nil, true, nil
	}

	records := semrel.Classify(commits)

	bump := opts.Bump
	if bump == semrel.BumpNone {
		bump = semrel.ComputeBump(records)
	}
	if bump == semrel.BumpNone {
		out.Plan.Mark(StepComputeVersion, StatusDone, "no release-worthy commits")
		return nil, nil, true, nil
	}

	logger.G(ctx).WithField("bump", bump.String()).Debug("computed version bump")

	next, err := semrel.Next(current, bump)
	if err != nil {
		return nil, nil, false, err
	}
	return records, next, false, nil
}

func displayTag(tag string) string {
	if tag == "" {
		return "repository start"
	}
	return tag
}

// runTests resolves and runs the primary framework, then applies the
// coverage threshold. Strict mode turns a missing framework into a failure;
// flexible mode skips. An actual test failure always aborts a release.
func (o *Orchestrator) runTests(ctx context.Context, opts Options, plan *Plan) error {
	if !o.cfg.Testing.Enabled {
		plan.Mark(StepRunTests, StatusSkipped, "testing disabled")
		plan.Mark(StepCoverage, StatusSkipped, "")
		return nil
	}

	wantCoverage := opts.CoverageReport || o.cfg.Testing.CoverageThreshold > 0

	candidates, err := o.tests.Resolve(ctx, o.profile)
	if err != nil {
		if errors.Is(err, testcap.ErrNoTestFramework) && !o.cfg.Testing.StrictMode {
			plan.Mark(StepRunTests, StatusSkipped, "no test framework detected")
			plan.Mark(StepCoverage, StatusSkipped, "")
			return nil
		}
		return err
	}

	outcome, err := o.tests.Run(ctx, candidates[0], o.cfg, wantCoverage)
	if err != nil {
		return err
	}
	if !outcome.Passed {
		if outcome.TimedOut {
			return errors.Wrap(ErrTestFailure, "test run timed out")
		}
		return errors.Wrapf(ErrTestFailure, "%d test(s) failed", outcome.FailedCount)
	}
	plan.Mark(StepRunTests, StatusDone, candidates[0].FrameworkID)

	threshold := o.cfg.Testing.CoverageThreshold
	switch {
	case threshold <= 0:
		plan.Mark(StepCoverage, StatusSkipped, "no threshold configured")
	case !outcome.HasCoverage:
		plan.Mark(StepCoverage, StatusSkipped, "no coverage data in test output")
	case outcome.CoveragePercent < threshold:
		return errors.Wrapf(ErrCoverageBelowThreshold, "%.1f%% < %.1f%%", outcome.CoveragePercent, threshold)
	default:
		plan.Mark(StepCoverage, StatusDone, fmt.Sprintf("%.1f%%", outcome.CoveragePercent))
	}

	return nil
}

// publish runs the ecosystem's publish command. Absence of a command or a
// disabled autoPublish skips the step rather than failing it.
func (o *Orchestrator) publish(ctx context.Context, plan *Plan) error {
	if !o.cfg.Release.AutoPublish {
		plan.Mark(StepPublish, StatusSkipped, "autoPublish disabled")
		return nil
	}

	adapter := project.Lookup(o.profile.EcosystemKind)
	if len(adapter.Publish) == 0 {
		plan.Mark(StepPublish, StatusSkipped, "no publish command for this ecosystem")
		return nil
	}

	result, err := o.runner.Run(ctx, executor.Command{
		Name:    adapter.Publish[0],
		Args:    adapter.Publish[1:],
		Dir:     o.root,
		Timeout: o.cfg.Timeouts.Step,
	})
	if err != nil {
		return errors.Wrap(ErrPublishFailure, err.Error())
	}
	if result.TimedOut {
		return errors.Wrap(ErrPublishFailure, "publish command timed out")
	}
	if result.ExitCode != 0 {
		detail := strings.TrimSpace(result.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", result.ExitCode)
		}
		return errors.Wrap(ErrPublishFailure, detail)
	}

	plan.Mark(StepPublish, StatusDone, strings.Join(adapter.Publish, " "))
	return nil
}

// persistChangelog prepends the new section to CHANGELOG.md.
func (o *Orchestrator) persistChangelog(section string) error {
	path := filepath.Join(o.root, ChangelogFileName)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	content := section
	if len(existing) > 0 {
		content = section + "\n" + string(existing)
	}

	return errors.Wrapf(os.WriteFile(path, []byte(content), 0o644), "failed to write %s", path)
}
