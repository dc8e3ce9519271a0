package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkgaudit/symaudit/internal/config"
	"github.com/pkgaudit/symaudit/internal/nupkg"
	"github.com/pkgaudit/symaudit/internal/validate"
	"github.com/pkgaudit/symaudit/internal/watcher"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <package.nupkg>",
	Short: "Validate a package and revalidate whenever it changes",
	Long: `Watch runs an initial validation pass, then watches the package file and
reruns validation every time it is rewritten. Each settled verdict is
printed as it arrives; only the latest pass's verdict is ever current.
`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	packagePath := args[0]
	validator := newValidator(cfg, newProgressReporter(cfg.Quiet))

	publisher := validate.NewPublisher(validator, func() (*nupkg.Package, error) {
		return nupkg.Open(packagePath)
	})

	outcomes, unsubscribe := publisher.Subscribe()
	defer unsubscribe()

	pw, err := watcher.NewPackageWatcher(packagePath, publisher.Refresh)
	if err != nil {
		return fmt.Errorf("failed to watch package: %w", err)
	}
	pw.Start(ctx)
	defer pw.Stop()

	publisher.Refresh(ctx)

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", packagePath)
	for {
		select {
		case <-ctx.Done():
			publisher.Wait()
			return nil
		case outcome := <-outcomes:
			printOutcome(outcome)
		}
	}
}
