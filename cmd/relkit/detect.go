package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relkit/relkit/pkg/config"
	"github.com/relkit/relkit/pkg/presenter"
	"github.com/relkit/relkit/pkg/project"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the project type and persist its profile",
	Long: `Detect inspects the repository root for ecosystem marker files (go.mod,
package.json, Cargo.toml, pyproject.toml) and persists the resulting profile.
A repository with no recognizable markers gets the generic profile rather
than an error.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		root, err := workingDirectory()
		if err != nil {
			presenter.Error(err, "Failed to resolve repository root")
			os.Exit(1)
		}

		store := config.NewStore(root)
		noCache, _ := cmd.Flags().GetBool("no-cache")

		profile, cached := project.Profile{}, false
		if !noCache {
			profile, cached = store.CachedProfile(ctx)
		}
		if !cached {
			profile, err = project.NewDetector(root).Detect(ctx)
			if err != nil {
				presenter.Error(err, "Detection failed")
				os.Exit(1)
			}
			if err := persistProfile(ctx, root, store, profile); err != nil {
				presenter.Error(err, "Failed to persist profile")
				os.Exit(1)
			}
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(profile, "", "  ")
			if err != nil {
				presenter.Error(err, "Failed to encode profile")
				os.Exit(1)
			}
			fmt.Println(string(data))
			return
		}

		printProfile(profile, cached)
	},
}

func printProfile(profile project.Profile, cached bool) {
	presenter.Section("Project Profile")
	presenter.Info(fmt.Sprintf("Ecosystem:  %s", profile.EcosystemKind))
	if profile.ManifestPath != "" {
		presenter.Info(fmt.Sprintf("Manifest:   %s", profile.ManifestPath))
	}
	if profile.LockFilePath != "" {
		presenter.Info(fmt.Sprintf("Lock file:  %s", profile.LockFilePath))
	}
	if profile.BuildToolHint != "" {
		presenter.Info(fmt.Sprintf("Build tool: %s", profile.BuildToolHint))
	}
	presenter.Info(fmt.Sprintf("Confidence: %.1f", profile.Confidence))

	if profile.IsGeneric() {
		presenter.Warning("No ecosystem markers found, only generic automation is available")
	}
	if cached {
		presenter.Info("(from cache, markers unchanged since last detection)")
	}
}

func init() {
	detectCmd.Flags().Bool("json", false, "Print the profile as JSON")
	detectCmd.Flags().Bool("no-cache", false, "Ignore the cached profile and re-scan")
}
