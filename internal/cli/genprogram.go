package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/internal/rustgen"
)

// GenProgramOptions holds flags for the gen-program command.
type GenProgramOptions struct {
	*RootOptions
	Check     bool   // compare instead of writing
	CrateName string // overrides the derived crate name
}

// GenProgramResult is the JSON payload of gen-program.
type GenProgramResult struct {
	Program string   `json:"program"`
	Files   []string `json:"files"`
	Drifted []string `json:"drifted,omitempty"`
}

// NewGenProgramCommand creates the gen-program command.
func NewGenProgramCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenProgramOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gen-program <ir> <out-dir>",
		Short: "Generate the pinocchio program crate",
		Long: `Lower an IR document and render the on-chain program crate
(Cargo.toml and src/lib.rs) into <out-dir>.

<ir> is an IR document written by compile, or any program source.

With --check nothing is written: the rendered files are compared with
those in <out-dir> and any difference is printed as a unified diff.

Exit codes:
  0 - Files written, or up to date with --check
  1 - Generated files drifted (--check)
  2 - Command error

Examples:
  solforge gen-program vault.ir.json ./programs/vault
  solforge gen-program vault.ir.json ./programs/vault --check`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenProgram(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "fail if generated files differ from <out-dir>")
	cmd.Flags().StringVar(&opts.CrateName, "crate", "", "crate name (default <program>_pinocchio)")
	return cmd
}

func runGenProgram(opts *GenProgramOptions, input, outDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	doc, err := readDocument(ctx, input)
	if err != nil {
		return reportError(formatter, err)
	}
	prog, err := onchain.Lower(doc)
	if err != nil {
		return reportError(formatter, err)
	}
	rustOpts := opts.config().Rust.RustOptions()
	rustOpts.CrateName = opts.CrateName
	files, err := rustgen.Render(prog, rustOpts)
	if err != nil {
		return reportError(formatter, err)
	}

	result := GenProgramResult{Program: prog.Name}
	for _, f := range files {
		result.Files = append(result.Files, f.Path)
	}

	if opts.Check {
		return checkGenerated(formatter, outDir, files, result)
	}

	for _, f := range files {
		path := filepath.Join(outDir, filepath.FromSlash(f.Path))
		if err := writeFile(path, f.Content); err != nil {
			return reportError(formatter, err)
		}
		formatter.VerboseLog("Wrote %s", path)
	}

	log.WithFields(logrus.Fields{
		"program": prog.Name,
		"out":     outDir,
	}).Info("generated program crate")

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Generated %s crate in %s (%d file(s))\n", prog.Name, outDir, len(files))
	return nil
}

// checkGenerated compares rendered files with what is on disk.
func checkGenerated(formatter *OutputFormatter, outDir string, files rustgen.Files, result GenProgramResult) error {
	var diffs []string
	for _, f := range files {
		path := filepath.Join(outDir, filepath.FromSlash(f.Path))
		existing, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return reportError(formatter, err)
		}
		if bytes.Equal(existing, f.Content) {
			continue
		}
		diff, err := unifiedDiff(path, existing, f.Content)
		if err != nil {
			return reportError(formatter, err)
		}
		result.Drifted = append(result.Drifted, f.Path)
		diffs = append(diffs, diff)
	}

	if len(result.Drifted) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ %s is up to date\n", outDir)
		return nil
	}

	if formatter.Format == "json" {
		_ = formatter.ErrorWithData("E_DRIFT", fmt.Sprintf("%d generated file(s) differ", len(result.Drifted)), result)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %d generated file(s) differ\n\n", len(result.Drifted))
		for _, d := range diffs {
			fmt.Fprint(formatter.Writer, d)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("generated files drifted: %v", result.Drifted))
}

// unifiedDiff renders the change from the file on disk to the generated one.
func unifiedDiff(path string, existing, generated []byte) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(existing)),
		B:        difflib.SplitLines(string(generated)),
		FromFile: path,
		ToFile:   path + " (generated)",
		Context:  3,
	})
}
