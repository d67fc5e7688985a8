package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Lock   string // lock store path; overrides lock_path
	Build  string // restore this build instead of listing
	Output string // where a restored build's IR is written
}

// HistoryBuild is one recorded build in the history listing.
type HistoryBuild struct {
	ID           string           `json:"id"`
	Seq          int64            `json:"seq"`
	IRHash       string           `json:"ir_hash"`
	IRVersion    string           `json:"ir_version"`
	Instructions []HistoryPublish `json:"instructions"`
}

// HistoryPublish is one published instruction of a build.
type HistoryPublish struct {
	Name          string `json:"name"`
	Discriminator int    `json:"discriminator"`
	Hash          string `json:"hash"`
}

// HistoryResult holds the build history of a program.
type HistoryResult struct {
	Program string         `json:"program"`
	Builds  []HistoryBuild `json:"builds"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <program>",
		Short: "Show the builds recorded in the lock store",
		Long: `List every build of a program recorded by compile --lock, oldest first,
with the discriminators each build published.

With --build the recorded IR document of that build is restored to
--output after its hash is checked against the recorded one, so the
program and client of an earlier release can be regenerated.

Examples:
  solforge history vault --lock solforge.db
  solforge history vault --lock solforge.db --build 0190... --output vault.ir.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Lock, "lock", "", "lock store path (default lock_path)")
	cmd.Flags().StringVar(&opts.Build, "build", "", "build ID to restore")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file for a restored build")

	return cmd
}

func runHistory(opts *HistoryOptions, program string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	lockPath := opts.Lock
	if lockPath == "" {
		lockPath = opts.config().LockPath
	}
	if lockPath == "" {
		return NewExitError(ExitCommandError, "no lock store: pass --lock or set lock_path")
	}
	if opts.Build != "" && opts.Output == "" {
		return NewExitError(ExitCommandError, "--build requires --output")
	}

	st, err := store.Open(lockPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open lock store", err)
	}
	defer st.Close()

	if opts.Build != "" {
		return restoreBuild(ctx, formatter, st, program, opts.Build, opts.Output)
	}

	builds, err := st.Builds(ctx, program)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read builds", err)
	}

	result := HistoryResult{Program: program, Builds: make([]HistoryBuild, 0, len(builds))}
	for _, b := range builds {
		hb := HistoryBuild{
			ID:           b.ID,
			Seq:          b.Seq,
			IRHash:       b.IRHash,
			IRVersion:    b.IRVersion,
			Instructions: make([]HistoryPublish, 0, len(b.Instructions)),
		}
		for _, ix := range b.Instructions {
			hb.Instructions = append(hb.Instructions, HistoryPublish{
				Name:          ix.Name,
				Discriminator: ix.Discriminator,
				Hash:          ix.Hash,
			})
		}
		result.Builds = append(result.Builds, hb)
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}
	return outputHistoryText(formatter, result)
}

func restoreBuild(ctx context.Context, formatter *OutputFormatter, st *store.Store, program, id, output string) error {
	b, err := st.Build(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read build", err)
	}
	if b.Program != program {
		return NewExitError(ExitCommandError, fmt.Sprintf("build %s belongs to %s, not %s", id, b.Program, program))
	}
	doc, err := b.LoadDocument()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode recorded IR", err)
	}
	hash, err := ir.DocumentHash(doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash recorded IR", err)
	}
	if hash != b.IRHash {
		return NewExitError(ExitFailure, fmt.Sprintf("build %s: recorded hash %s, document hashes to %s", id, b.IRHash, hash))
	}

	data, err := ir.MarshalDocument(doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode IR", err)
	}
	if err := writeFile(output, data); err != nil {
		return WrapExitError(ExitCommandError, "failed to write IR", err)
	}

	if formatter.Format == "json" {
		return json.NewEncoder(formatter.Writer).Encode(CLIResponse{
			Status: "ok",
			Build:  b.ID,
			Data: map[string]interface{}{
				"program": program,
				"seq":     b.Seq,
				"ir_hash": hash,
				"output":  output,
			},
		})
	}
	fmt.Fprintf(formatter.Writer, "✓ Restored %s build #%d to %s\n", program, b.Seq, output)
	return nil
}

func outputHistoryText(formatter *OutputFormatter, result HistoryResult) error {
	w := formatter.Writer
	if len(result.Builds) == 0 {
		fmt.Fprintf(w, "No builds recorded for %s\n", result.Program)
		return nil
	}

	fmt.Fprintf(w, "%s: %d build(s)\n\n", result.Program, len(result.Builds))
	for _, b := range result.Builds {
		fmt.Fprintf(w, "#%d %s\n", b.Seq, b.ID)
		fmt.Fprintf(w, "  ir hash: %s (v%s)\n", b.IRHash, b.IRVersion)
		for _, ix := range b.Instructions {
			fmt.Fprintf(w, "  [%d] %s\n", ix.Discriminator, ix.Name)
		}
		fmt.Fprintln(w)
	}
	return nil
}
