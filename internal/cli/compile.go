package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/store"
)

var log = logrus.StandardLogger().WithField("type", "cli")

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Lock string // lock store path; overrides lock_path
}

// CompileResult is the JSON payload of a successful compile.
type CompileResult struct {
	Program      string   `json:"program"`
	Address      string   `json:"address"`
	IRHash       string   `json:"ir_hash"`
	Instructions []string `json:"instructions"`
	Views        []string `json:"views"`
	Output       string   `json:"output"`
	Build        string   `json:"build,omitempty"`
	Seq          int64    `json:"seq,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <input> <output>",
		Short: "Compile a program to its IR document",
		Long: `Load a program, build and validate its IR and write the IR document as JSON.

With --lock (or lock_path in the config), the document is checked against
every discriminator the program published before and recorded as a new
build after it is written. A changed or removed discriminator fails the
compile without writing anything.

Examples:
  solforge compile ./programs/vault vault.ir.json
  solforge compile builtin:amm amm.ir.json --lock solforge.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Lock, "lock", "", "lock store for discriminator compatibility")
	return cmd
}

func runCompile(opts *CompileOptions, input, output string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	doc, err := buildDocument(ctx, input)
	if err != nil {
		return reportError(formatter, err)
	}
	hash, err := ir.DocumentHash(doc)
	if err != nil {
		return reportError(formatter, err)
	}

	lockPath := opts.Lock
	if lockPath == "" {
		lockPath = opts.config().LockPath
	}

	var st *store.Store
	if lockPath != "" {
		st, err = store.Open(lockPath)
		if err != nil {
			return reportError(formatter, fmt.Errorf("opening lock store: %w", err))
		}
		defer st.Close()

		published, err := st.Published(ctx, doc.Name)
		if err != nil {
			return reportError(formatter, err)
		}
		if errs := compiler.CheckCompatibility(published, doc); len(errs) > 0 {
			return outputValidationErrors(formatter, errs)
		}
	}

	data, err := ir.MarshalDocument(doc)
	if err != nil {
		return reportError(formatter, err)
	}
	if err := writeFile(output, data); err != nil {
		return reportError(formatter, err)
	}

	result := CompileResult{
		Program: doc.Name,
		Address: doc.ProgramAddress,
		IRHash:  hash,
		Output:  output,
	}
	for _, ix := range doc.Instructions {
		result.Instructions = append(result.Instructions, ix.Name)
	}
	for _, v := range doc.Views {
		result.Views = append(result.Views, v.Name)
	}

	if st != nil {
		b, err := store.NewBuild(doc)
		if err != nil {
			return reportError(formatter, err)
		}
		if b, err = st.RecordBuild(ctx, b); err != nil {
			return reportError(formatter, fmt.Errorf("recording build: %w", err))
		}
		result.Build = b.ID
		result.Seq = b.Seq
	}

	log.WithFields(logrus.Fields{
		"program": doc.Name,
		"hash":    hash,
		"output":  output,
	}).Info("compiled program")

	return outputCompileSuccess(formatter, result)
}

func outputCompileSuccess(formatter *OutputFormatter, result CompileResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %s: %d instruction(s), %d view(s)\n\n",
		result.Program, len(result.Instructions), len(result.Views))
	fmt.Fprintf(w, "  address: %s\n", result.Address)
	fmt.Fprintf(w, "  ir hash: %s\n", result.IRHash)
	if result.Build != "" {
		fmt.Fprintf(w, "  build:   #%d %s\n", result.Seq, result.Build)
	}
	fmt.Fprintf(w, "\nWrote IR to %s\n", result.Output)
	return nil
}
