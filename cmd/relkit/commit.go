package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relkit/relkit/pkg/config"
	"github.com/relkit/relkit/pkg/executor"
	"github.com/relkit/relkit/pkg/gate"
	"github.com/relkit/relkit/pkg/gitx"
	"github.com/relkit/relkit/pkg/presenter"
	"github.com/relkit/relkit/pkg/testcap"
)

const (
	exitGateLint  = 1
	exitGateTests = 2
)

var commitCmd = &cobra.Command{
	Use:   "commit <message>",
	Short: "Run the quality gate and commit the staged changes",
	Long: `Commit runs the quality gate (lint check, then a test run when enabled)
against the repository and, when the gate accepts, records the staged changes
as a commit with the given message.

Exit codes: 0 accepted, 1 rejected by lint, 2 rejected by tests.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		message := args[0]

		root, err := workingDirectory()
		if err != nil {
			presenter.Error(err, "Failed to resolve repository root")
			os.Exit(exitGateLint)
		}

		repo, err := gitx.Open(root)
		if err != nil {
			presenter.Error(err, "Not a git repository")
			os.Exit(exitGateLint)
		}

		strictTests, _ := cmd.Flags().GetBool("strict-tests")
		skipTests, _ := cmd.Flags().GetBool("skip-tests")

		store := config.NewStore(root)
		profile, err := loadProfile(ctx, root, store)
		if err != nil {
			presenter.Error(err, "Detection failed")
			os.Exit(exitGateLint)
		}
		cfg := loadConfig(ctx, store, config.Layer{})

		runner := executor.NewRunner()
		g := gate.New(root, profile, cfg, runner, testcap.NewResolver(root, runner))

		result := g.Run(ctx, gate.Request{
			Message:     message,
			StrictTests: strictTests,
			SkipTests:   skipTests,
		})

		printGateResult(result)

		if !result.Accepted() {
			switch result.RejectedBy {
			case gate.RejectedByTests:
				os.Exit(exitGateTests)
			default:
				os.Exit(exitGateLint)
			}
		}

		hash, err := repo.Commit(message)
		if err != nil {
			presenter.Error(err, "Failed to create commit")
			os.Exit(exitGateLint)
		}
		presenter.Success(fmt.Sprintf("Committed %s", hash[:8]))
	},
}

// printGateResult echoes every check, including skips and bypasses, so a
// strict or bypass decision is never silent.
func printGateResult(result gate.Result) {
	presenter.Section("Commit Gate")
	for _, check := range result.Checks {
		status := "passed"
		switch {
		case check.Skipped:
			status = "skipped"
		case !check.Passed:
			status = "failed"
		}
		presenter.Step(check.Name, status)
		if check.Detail != "" {
			presenter.Info("  " + check.Detail)
		}
	}

	if result.Bypassed {
		presenter.Warning("Test step was bypassed with --skip-tests")
	}

	if result.Accepted() {
		presenter.Success("Gate accepted")
		return
	}
	presenter.Error(result.Err, fmt.Sprintf("Gate rejected by %s", result.RejectedBy))
}

func init() {
	commitCmd.Flags().Bool("strict-tests", false, "Reject the commit on any test problem")
	commitCmd.Flags().Bool("skip-tests", false, "Bypass the test step (recorded in the gate output)")
	commitCmd.MarkFlagsMutuallyExclusive("strict-tests", "skip-tests")
}
