package cmd

import (
	"github.com/CompassSecurity/jsleek/internal/cmd/common"
	"github.com/CompassSecurity/jsleek/internal/cmd/explain"
	"github.com/CompassSecurity/jsleek/internal/cmd/scan"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the jsleek command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "jsleek",
		Short:   "Find leaked secrets and API endpoints in the scripts of web pages",
		Long:    "jsleek scans the JavaScript bundles and source maps a web page loads for leaked credentials and API endpoint references, and ranks every finding by confidence.",
		Version: common.Version,
	}

	rootCmd.AddCommand(scan.NewScanCmd())
	rootCmd.AddCommand(explain.NewExplainCmd())

	common.SetupPersistentPreRun(rootCmd)
	common.AddCommonFlags(rootCmd)

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	return rootCmd
}
