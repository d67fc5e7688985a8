package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/solforge/internal/clientgen"
)

// GenClientOptions holds flags for the gen-client command.
type GenClientOptions struct {
	*RootOptions
	Package string
}

// GenClientResult is the JSON payload of gen-client.
type GenClientResult struct {
	Program string `json:"program"`
	Package string `json:"package"`
	Go      string `json:"go"`
	IDL     string `json:"idl"`
}

// NewGenClientCommand creates the gen-client command.
func NewGenClientCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenClientOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gen-client <ir> <out-dir>",
		Short: "Generate Go client bindings and the IDL",
		Long: `Render Go bindings (<program>.go) and an IDL (<program>.idl.json) for an
IR document. The bindings encode instructions and derive PDAs exactly as
the generated program does.

Examples:
  solforge gen-client vault.ir.json ./client/vault
  solforge gen-client vault.ir.json ./client/vault --package vault`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenClient(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Package, "package", "", "Go package name (default client.package)")
	return cmd
}

func runGenClient(opts *GenClientOptions, input, outDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := opts.config()
	pkg := opts.Package
	if pkg == "" {
		pkg = cfg.Client.Package
	}

	doc, err := readDocument(ctx, input)
	if err != nil {
		return reportError(formatter, err)
	}
	out, err := clientgen.Generate(doc, pkg, clientgen.WithIDLVersion(cfg.IDL.Version))
	if err != nil {
		return reportError(formatter, err)
	}

	base := strings.ToLower(doc.Name)
	result := GenClientResult{
		Program: doc.Name,
		Package: pkg,
		Go:      filepath.Join(outDir, base+".go"),
		IDL:     filepath.Join(outDir, base+".idl.json"),
	}
	if err := writeFile(result.Go, out.Go); err != nil {
		return reportError(formatter, err)
	}
	if err := writeFile(result.IDL, out.IDL); err != nil {
		return reportError(formatter, err)
	}

	log.WithFields(logrus.Fields{
		"program": doc.Name,
		"package": pkg,
		"out":     outDir,
	}).Info("generated client")

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Generated %s client\n\n", doc.Name)
	fmt.Fprintf(formatter.Writer, "  %s\n  %s\n", result.Go, result.IDL)
	return nil
}
