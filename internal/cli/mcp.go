package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkgaudit/symaudit/internal/config"
	"github.com/pkgaudit/symaudit/internal/mcp"
	"github.com/pkgaudit/symaudit/internal/nupkg"
	"github.com/pkgaudit/symaudit/internal/validate"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server exposing package validation as a tool",
	Long: `MCP starts a Model Context Protocol server on stdio. It exposes one
tool, symaudit_validate, which validates a package on disk and returns the
verdict and report as JSON.
`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	validator := newValidator(cfg, validate.NoOpProgressReporter{})

	srv, err := mcp.NewServer(func(ctx context.Context, packagePath string) (validate.Outcome, error) {
		pkg, err := nupkg.Open(packagePath)
		if err != nil {
			return validate.Outcome{}, err
		}
		defer pkg.Close()

		outcome := validator.Validate(ctx, pkg)
		recordOutcome(ctx, cfg, packagePath, pkg, outcome)
		return outcome, nil
	})
	if err != nil {
		return err
	}

	return srv.Serve(cmd.Context())
}
