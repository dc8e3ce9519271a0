package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "symaudit",
	Short: "Validate a package's debug symbols and Source Link",
	Long: `symaudit checks whether the binaries in a NuGet package carry usable
debugging information: present symbols, trustworthy provenance, and Source
Link metadata pointing at retrievable source.

Missing symbols are recovered best-effort from the package registry's symbol
mirror and, for platform-signed binaries, from the platform symbol server.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.symaudit/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
