package cmd

import (
	"github.com/spf13/cobra"
)

const (
	// Exit codes of the deploy command.
	exitSuccess = 0
	exitPartial = 1
	exitFailed  = 2
	exitConfig  = 3
)

var version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slipway",
	Short: "Staged, dependency-aware Kubernetes deployments",
	Long: `slipway loads declarative manifests, derives the dependency graph
among them (storage before claims, secrets and claims before workloads,
backend services before proxies), applies them stage by stage, and
waits for each stage to become ready before starting the next.`,
	// SilenceUsage avoids printing usage on errors we handle ourselves.
	SilenceUsage: true,
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute runs the CLI and returns the process exit code:
// 0 success, 1 partial, 2 failed, 3 configuration or validation error.
func Execute() int {
	exitCode := exitSuccess
	setExit := func(code int) {
		if code > exitCode {
			exitCode = code
		}
	}

	rootCmd.AddCommand(newDeployCmd(setExit))
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		// Errors reaching cobra are configuration or validation
		// problems; run outcomes are mapped through setExit.
		setExit(exitConfig)
	}
	return exitCode
}
