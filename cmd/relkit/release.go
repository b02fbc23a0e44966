package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relkit/relkit/pkg/config"
	"github.com/relkit/relkit/pkg/executor"
	"github.com/relkit/relkit/pkg/gitx"
	"github.com/relkit/relkit/pkg/lock"
	"github.com/relkit/relkit/pkg/presenter"
	"github.com/relkit/relkit/pkg/release"
	"github.com/relkit/relkit/pkg/semrel"
	"github.com/relkit/relkit/pkg/testcap"
)

const (
	exitReleaseAborted      = 3
	exitReleaseIrreversible = 4
)

var releaseCmd = &cobra.Command{
	Use:   "release [auto|patch|minor|major]",
	Short: "Run the release pipeline",
	Long: `Release verifies the working tree is clean, computes the next version from
the commit history (or the explicit bump level), runs tests, generates the
changelog, then tags, pushes, and optionally publishes.

Everything before the tag is safe to retry. A failure at or after the tag is
never rolled back; the step report shows exactly where to resume manually.

Exit codes: 0 success or nothing to release, 3 aborted before the tag,
4 failed after the tag was created.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		bump, err := parseBumpArg(args)
		if err != nil {
			presenter.Error(err, "Invalid bump level")
			os.Exit(exitReleaseAborted)
		}

		root, err := workingDirectory()
		if err != nil {
			presenter.Error(err, "Failed to resolve repository root")
			os.Exit(exitReleaseAborted)
		}

		repo, err := gitx.Open(root)
		if err != nil {
			presenter.Error(err, "Not a git repository")
			os.Exit(exitReleaseAborted)
		}

		store := config.NewStore(root)
		profile, err := loadProfile(ctx, root, store)
		if err != nil {
			presenter.Error(err, "Detection failed")
			os.Exit(exitReleaseAborted)
		}
		cfg := loadConfig(ctx, store, releaseFlagLayer(cmd))

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		coverageReport, _ := cmd.Flags().GetBool("coverage-report")
		yes, _ := cmd.Flags().GetBool("yes")

		if !dryRun && !yes && !confirmRelease() {
			presenter.Info("Release cancelled")
			return
		}

		runner := executor.NewRunner()
		orch := release.New(root, profile, cfg, repo,
			testcap.NewResolver(root, runner), runner, lock.New(root))

		out := orch.Run(ctx, release.Options{
			Bump:           bump,
			DryRun:         dryRun,
			CoverageReport: coverageReport,
		})

		printPlan(out)

		switch {
		case out.Succeeded():
			printSuccess(out)
		case out.Irreversible:
			printRemediation(out)
			os.Exit(exitReleaseIrreversible)
		default:
			presenter.Error(out.Err, fmt.Sprintf("Release aborted at %q, repository untouched", out.FailedStep))
			os.Exit(exitReleaseAborted)
		}
	},
}

func parseBumpArg(args []string) (semrel.Bump, error) {
	if len(args) == 0 || args[0] == "auto" {
		return semrel.BumpNone, nil
	}
	return semrel.ParseBump(args[0])
}

// releaseFlagLayer turns per-invocation flags into the highest-precedence
// configuration layer.
func releaseFlagLayer(cmd *cobra.Command) config.Layer {
	var layer config.Layer

	if cmd.Flags().Changed("skip-tests") {
		off := false
		layer.Testing.Enabled = &off
	}
	if cmd.Flags().Changed("coverage-threshold") {
		threshold, _ := cmd.Flags().GetFloat64("coverage-threshold")
		layer.Testing.CoverageThreshold = &threshold
	}
	if cmd.Flags().Changed("no-publish") {
		off := false
		layer.Release.AutoPublish = &off
	}

	return layer
}

// confirmRelease asks before the pipeline starts, since the tag and push are
// irreversible. Anything but an explicit yes cancels, so a non-interactive
// run without --yes never releases by accident.
func confirmRelease() bool {
	answer := presenter.Prompt("Create and push a release? This cannot be undone", "y", "N")
	return acceptsRelease(answer)
}

func acceptsRelease(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func printPlan(out release.Outcome) {
	presenter.Section("Release Plan")
	for _, step := range out.Plan.Steps {
		presenter.Step(step.Name, string(step.Status))
	}
}

func printSuccess(out release.Outcome) {
	switch {
	case out.NoOp:
		presenter.Success("Nothing to release")
	case out.DryRun:
		presenter.Success(fmt.Sprintf("Dry run: would release %s", out.TagName))
		presenter.Separator()
		presenter.Info(out.Changelog)
	default:
		presenter.Success(fmt.Sprintf("Released %s", out.TagName))
	}
}

// printRemediation reports a failure past the irreversible boundary: the
// exact done/failed split, plus what to do by hand. Nothing is rolled back.
func printRemediation(out release.Outcome) {
	presenter.Error(out.Err, fmt.Sprintf("Release failed at %q after the irreversible boundary", out.FailedStep))
	presenter.Section("Manual Remediation")
	if tag, ok := out.Plan.Get(release.StepTag); ok && tag.Status == release.StatusDone {
		presenter.Info(fmt.Sprintf("Tag %s was created and is kept in place.", out.TagName))
	}
	switch out.FailedStep {
	case release.StepPush:
		presenter.Info("Push the tag and branch manually once the remote is reachable:")
		presenter.Info(fmt.Sprintf("  git push origin HEAD %s", out.TagName))
	case release.StepPublish:
		presenter.Info("The tag was pushed. Re-run the publish step by hand for this ecosystem.")
	}
}

func init() {
	releaseCmd.Flags().Bool("dry-run", false, "Stop before the first irreversible step")
	releaseCmd.Flags().Bool("coverage-report", false, "Collect coverage during the test run")
	releaseCmd.Flags().Bool("skip-tests", false, "Disable the test step for this release")
	releaseCmd.Flags().Float64("coverage-threshold", 0, "Minimum coverage percentage (overrides configuration)")
	releaseCmd.Flags().Bool("no-publish", false, "Disable the publish step for this release")
	releaseCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
}
