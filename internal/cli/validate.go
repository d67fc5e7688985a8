package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/solforge/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <input>",
		Short: "Validate a program without writing anything",
		Long: `Load and build a program, reporting every validation error at once.

<input> is builtin:<name>, a .cue file or a directory of .cue files.

Exit codes:
  0 - Program is valid
  1 - Program is invalid
  2 - Input could not be read

Examples:
  solforge validate ./programs/vault
  solforge validate builtin:amm --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, input string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	doc, err := buildDocument(ctx, input)
	if err != nil {
		return reportError(formatter, err)
	}
	formatter.VerboseLog("Built %s: %d instruction(s), %d view(s)", doc.Name, len(doc.Instructions), len(doc.Views))

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", doc.Name)
	return nil
}
