package rustgen

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/token"
)

var log = logrus.StandardLogger().WithField("type", "rustgen")

// Paths of the rendered crate files, relative to the output directory.
const (
	LibPath   = "src/lib.rs"
	CargoPath = "Cargo.toml"
)

// File is one rendered file.
type File struct {
	Path    string
	Content []byte
}

// Files is a rendered crate.
type Files []File

// Get returns the content rendered for path.
func (fs Files) Get(path string) ([]byte, bool) {
	for _, f := range fs {
		if f.Path == path {
			return f.Content, true
		}
	}
	return nil, false
}

// Render emits the pinocchio crate for p.
func Render(p *onchain.Program, opts Options) (Files, error) {
	opts = opts.withDefaults(p.Name)

	g := &generator{prog: p}
	if err := g.lib(); err != nil {
		return nil, err
	}
	files := Files{
		{Path: CargoPath, Content: []byte(cargoToml(opts))},
		{Path: LibPath, Content: []byte(g.sb.String())},
	}
	log.WithFields(logrus.Fields{
		"program": p.Name,
		"crate":   opts.CrateName,
		"bytes":   len(files[1].Content),
	}).Debug("rendered program crate")
	return files, nil
}

type generator struct {
	sb     strings.Builder
	indent int
	prog   *onchain.Program
}

func (g *generator) emitLine(s string) {
	if s == "" {
		g.sb.WriteString("\n")
		return
	}
	g.sb.WriteString(strings.Repeat("    ", g.indent))
	g.sb.WriteString(s)
	g.sb.WriteString("\n")
}

func (g *generator) emitLinef(format string, args ...any) {
	g.emitLine(fmt.Sprintf(format, args...))
}

// emitBlock writes a multi-line template verbatim at the current indent.
func (g *generator) emitBlock(block string) {
	for _, line := range strings.Split(strings.TrimSuffix(block, "\n"), "\n") {
		g.emitLine(line)
	}
}

func (g *generator) incIndent() { g.indent++ }
func (g *generator) decIndent() { g.indent-- }

func (g *generator) hasStep(match func(onchain.Step) bool) bool {
	for _, h := range g.prog.Handlers {
		for _, s := range h.Steps {
			if match(s) {
				return true
			}
		}
	}
	return false
}

func (g *generator) lib() error {
	usesInit := g.hasStep(func(s onchain.Step) bool { _, ok := s.(onchain.EnsureAccount); return ok })
	usesEvents := g.hasStep(func(s onchain.Step) bool { _, ok := s.(onchain.EmitEvent); return ok })
	usesToken := g.hasStep(func(s onchain.Step) bool {
		switch s.(type) {
		case onchain.InvokeToken, onchain.CheckAssociated, onchain.CheckProgram:
			return true
		}
		return false
	})

	g.emitLine("// AUTO-GENERATED - DO NOT EDIT")
	g.emitLinef("// program: %s", g.prog.Name)
	g.emitLinef("// address: %s", g.prog.Address)
	g.emitLinef("// ir-hash: %s", g.prog.IRHash)
	g.emitLine("#![no_std]")
	g.emitLine("")
	g.imports(usesInit, usesEvents)
	g.emitLine("")
	g.emitBlock(entrypointPrelude)
	g.emitLine("")

	for _, s := range g.prog.States {
		g.state(s)
		g.emitLine("")
	}
	if usesToken {
		g.programIDs()
		g.emitLine("")
	}
	if usesInit {
		g.emitBlock(initHelpers)
		g.emitLine("")
	}
	g.emitBlock(codecHelpers)
	g.emitLine("")
	g.emitBlock(arithHelpers)
	g.emitLine("")
	g.dispatch()

	for _, h := range g.prog.Handlers {
		g.emitLine("")
		if err := g.handler(h); err != nil {
			return fmt.Errorf("render %s: %w", h.Name, err)
		}
	}
	return nil
}

func (g *generator) imports(usesInit, usesEvents bool) {
	g.emitLine("use pinocchio::{")
	g.incIndent()
	g.emitLine("account_info::AccountInfo,")
	if usesInit {
		g.emitLine("cpi::invoke_signed,")
		g.emitLine("instruction::{AccountMeta, Instruction, Signer},")
	} else {
		g.emitLine("instruction::Signer,")
	}
	if usesEvents {
		g.emitLine("log::{sol_log, sol_log_64},")
	}
	g.emitLine("program_entrypoint,")
	g.emitLine("program_error::ProgramError,")
	g.emitLine("pubkey,")
	g.emitLine("pubkey::Pubkey,")
	g.emitLine("seeds,")
	if usesInit {
		g.emitLine("sysvars::{")
		g.incIndent()
		g.emitLine("rent::{Rent, ACCOUNT_STORAGE_OVERHEAD, DEFAULT_EXEMPTION_THRESHOLD, DEFAULT_LAMPORTS_PER_BYTE_YEAR},")
		g.emitLine("Sysvar,")
		g.decIndent()
		g.emitLine("},")
	}
	g.emitLine("ProgramResult,")
	g.decIndent()
	g.emitLine("};")
	g.emitLine("use pinocchio_tkn::common::{Burn, MintTo, Transfer};")
}

func rustType(t ir.ScalarType) string {
	if t == ir.Pubkey {
		return "Pubkey"
	}
	return string(t)
}

func (g *generator) state(s onchain.State) {
	l := s.Layout
	name := pascal(l.Name)

	g.emitLine("#[derive(Clone, Copy)]")
	g.emitLinef("struct %s {", name)
	g.incIndent()
	for _, f := range l.Fields {
		g.emitLinef("pub %s: %s,", ident(f.Name), rustType(f.Type))
	}
	g.decIndent()
	g.emitLine("}")
	g.emitLine("")

	g.emitLinef("impl %s {", name)
	g.incIndent()
	g.emitLinef("const LEN: usize = %d;", l.Size)
	g.emitLine("")

	g.emitLine("fn load(account: &AccountInfo) -> Result<Self, ProgramError> {")
	g.incIndent()
	g.emitLine("let data = account.try_borrow_data()?;")
	g.emitLine("if data.len() < Self::LEN {")
	g.emitLine("    return Err(ProgramError::AccountDataTooSmall);")
	g.emitLine("}")
	for _, f := range l.Fields {
		g.emitLinef("let %s = read_%s(&data, %d)?;", ident(f.Name), f.Type, f.Offset)
	}
	g.emitLine("Ok(Self {")
	g.incIndent()
	for _, f := range l.Fields {
		g.emitLinef("%s,", ident(f.Name))
	}
	g.decIndent()
	g.emitLine("})")
	g.decIndent()
	g.emitLine("}")
	g.emitLine("")

	g.emitLine("fn store(account: &AccountInfo, state: &Self) -> Result<(), ProgramError> {")
	g.incIndent()
	g.emitLine("let mut data = account.try_borrow_mut_data()?;")
	g.emitLine("if data.len() < Self::LEN {")
	g.emitLine("    return Err(ProgramError::AccountDataTooSmall);")
	g.emitLine("}")
	for _, f := range l.Fields {
		ref := ""
		if f.Type == ir.Pubkey {
			ref = "&"
		}
		g.emitLinef("write_%s(&mut data, %d, %sstate.%s)?;", f.Type, f.Offset, ref, ident(f.Name))
	}
	g.emitLine("Ok(())")
	g.decIndent()
	g.emitLine("}")
	g.decIndent()
	g.emitLine("}")
}

func (g *generator) dispatch() {
	g.emitLine("pub fn process_instruction(")
	g.emitLine("    program_id: &Pubkey,")
	g.emitLine("    accounts: &[AccountInfo],")
	g.emitLine("    data: &[u8],")
	g.emitLine(") -> ProgramResult {")
	g.incIndent()
	g.emitLine("if data.is_empty() {")
	g.emitLine("    return Err(ProgramError::InvalidInstructionData);")
	g.emitLine("}")
	g.emitLine("")
	g.emitLine("match data[0] {")
	g.incIndent()
	for _, h := range g.prog.Handlers {
		g.emitLinef("%d => handle_%s(program_id, accounts, &data[1..]),", h.Discriminator, snake(h.Name))
	}
	g.emitLine("_ => Err(ProgramError::InvalidInstructionData),")
	g.decIndent()
	g.emitLine("}")
	g.decIndent()
	g.emitLine("}")
}

// programIDNames are the constants the crate declares for the programs its
// handlers call or check.
var programIDNames = []struct {
	name string
	key  solana.PublicKey
}{
	{"TOKEN_PROGRAM_ID", token.ProgramKey},
	{"ASSOCIATED_TOKEN_PROGRAM_ID", token.AssociatedTokenAccountProgramKey},
}

func (g *generator) programIDs() {
	for _, p := range programIDNames {
		g.emitLine("#[allow(dead_code)]")
		g.emitLinef("const %s: Pubkey = %s;", p.name, pubkeyLiteral(p.key))
	}
}

// programID renders a reference target for k: a declared constant when
// there is one, a literal otherwise.
func programID(k solana.PublicKey) string {
	for _, p := range programIDNames {
		if p.key == k {
			return p.name
		}
	}
	return pubkeyLiteral(k)
}

func pubkeyLiteral(k solana.PublicKey) string {
	parts := make([]string, len(k))
	for i, b := range k {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
