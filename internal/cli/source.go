package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/harness"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/loader"
)

// buildDocument loads a program source and builds its IR.
func buildDocument(ctx context.Context, input string) (*ir.Document, error) {
	p, err := loader.NewChain().Load(ctx, input)
	if err != nil {
		return nil, err
	}
	return compiler.Build(p)
}

// readDocument reads an IR document, or builds one when input is a
// program source.
func readDocument(ctx context.Context, input string) (*ir.Document, error) {
	return harness.LoadDocument(ctx, input, loader.NewChain())
}

// writeFile writes data to path, creating parent directories.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// reportError prints err through the formatter and converts it to an
// ExitError. Invalid programs exit with ExitFailure, everything else with
// ExitCommandError.
func reportError(formatter *OutputFormatter, err error) error {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return outputValidationErrors(formatter, verrs)
	}

	var loadErr *loader.LoadError
	if errors.As(err, &loadErr) {
		var details interface{}
		if loadErr.Pos.IsValid() {
			details = map[string]interface{}{
				"file":   loadErr.Pos.Filename(),
				"line":   loadErr.Pos.Line(),
				"column": loadErr.Pos.Column(),
			}
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, details)
		return WrapExitError(loadExitCode(loadErr.Code), "loading program", err)
	}

	_ = formatter.Error(loader.ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "command failed", err)
}

// loadExitCode separates unreadable sources from malformed programs.
func loadExitCode(code string) int {
	switch code {
	case loader.ErrCodeBuildFailed, loader.ErrCodeDecode:
		return ExitFailure
	}
	return ExitCommandError
}

// outputValidationErrors lists every validation error and fails with
// ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, errs compiler.ValidationErrors) error {
	if formatter.Format == "json" {
		first := errs[0]
		_ = formatter.ErrorWithData(first.Code, first.Message, ValidationResult{Valid: false, Errors: errs})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	w := formatter.GetErrWriter()
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, e := range errs {
		fmt.Fprintf(w, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d error(s)\n", len(errs))
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
