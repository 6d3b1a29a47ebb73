package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/TheCurle/BS/pkg/buildsys"
	"github.com/TheCurle/BS/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "bs",
	Short: "Plugin based build orchestrator",
	Long: `This command bundles the build orchestrator and a few helpers used by build steps.
This includes cross-platform implementations of mv, rm and mkdir and a tool to merge compile_commands.json files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(cmd.RootCmd)

	// "bs" without a subcommand builds
	rootCmd.RunE = cmd.RootCmd.RunE
	rootCmd.Flags().AddFlagSet(cmd.RootCmd.Flags())

	// steps call "mv", "rm" and "mkdir" through our own binary so they behave the same everywhere
	if self, err := os.Executable(); err == nil {
		buildsys.HelperBinary = self
	}
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
