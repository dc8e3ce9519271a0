package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pkgaudit/symaudit/internal/config"
	"github.com/pkgaudit/symaudit/internal/history"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent validation runs",
	Long: `History lists recorded validation runs, newest first. Requires
history.enabled in the configuration.
`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is not enabled; set history.enabled and history.path in the configuration")
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	runs, err := store.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tPACKAGE\tVERSION\tRESULT\tDURATION")
	for _, r := range runs {
		pkg := r.PackageID
		if pkg == "" {
			pkg = r.PackagePath
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			pkg, r.PackageVersion, r.Result, r.Duration.Round(timeRounding))
	}
	return w.Flush()
}
