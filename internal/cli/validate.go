package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pkgaudit/symaudit/internal/authenticode"
	"github.com/pkgaudit/symaudit/internal/config"
	"github.com/pkgaudit/symaudit/internal/dbg"
	"github.com/pkgaudit/symaudit/internal/history"
	"github.com/pkgaudit/symaudit/internal/nupkg"
	"github.com/pkgaudit/symaudit/internal/symbols"
	"github.com/pkgaudit/symaudit/internal/validate"
)

var quietFlag bool

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate <package.nupkg>",
	Short: "Validate a package's symbols and Source Link once",
	Long: `Validate runs one full validation pass over the package and prints the
verdict plus a per-category report of any problems found.

Exit code is 0 when the package validates (locally or with external
symbols) and 1 otherwise.

Examples:
  # Validate a package
  symaudit validate ./mylib.1.2.3.nupkg

  # Validate without progress output
  symaudit validate --quiet ./mylib.1.2.3.nupkg
`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Disable progress output")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	packagePath := args[0]
	pkg, err := nupkg.Open(packagePath)
	if err != nil {
		return fmt.Errorf("failed to open package: %w", err)
	}
	defer pkg.Close()

	validator := newValidator(cfg, newProgressReporter(quietFlag || cfg.Quiet))
	outcome := validator.Validate(ctx, pkg)

	recordOutcome(ctx, cfg, packagePath, pkg, outcome)
	printOutcome(outcome)

	if !outcome.Result.IsValid() {
		os.Exit(1)
	}
	return nil
}

// newValidator wires the production collaborators.
func newValidator(cfg *config.Config, progress validate.ProgressReporter) *validate.Validator {
	return validate.NewValidator(
		dbg.NewReader(),
		authenticode.NewInspector(),
		symbols.NewRegistrySource(cfg.Timeout()),
		symbols.NewServerSource(cfg.Timeout()),
		progress,
	)
}

func recordOutcome(ctx context.Context, cfg *config.Config, packagePath string, pkg *nupkg.Package, outcome validate.Outcome) {
	if !cfg.History.Enabled {
		return
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		log.Printf("Warning: failed to open history store: %v", err)
		return
	}
	defer store.Close()

	err = store.Record(ctx, history.Run{
		ID:             outcome.RunID,
		PackagePath:    packagePath,
		PackageID:      pkg.ID(),
		PackageVersion: pkg.Version(),
		Result:         outcome.Result.String(),
		ErrorMessage:   outcome.ErrorMessage,
		External:       outcome.External,
		StartedAt:      timeNow().Add(-outcome.Duration),
		Duration:       outcome.Duration,
	})
	if err != nil {
		log.Printf("Warning: failed to record run: %v", err)
	}
}

func printOutcome(outcome validate.Outcome) {
	fmt.Printf("Result: %s (%v)\n", outcome.Result, outcome.Duration.Round(timeRounding))
	if outcome.ErrorMessage != "" {
		fmt.Println()
		fmt.Println(outcome.ErrorMessage)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted! Cancelling validation...")
		cancel()
	}()

	return ctx, cancel
}
