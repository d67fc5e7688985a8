package rustgen

import (
	"fmt"
	"strings"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
)

func (g *generator) handler(h *onchain.Handler) error {
	name := snake(h.Name)
	args := pascal(h.Name) + "Args"

	if len(h.Args.Fields) == 0 {
		g.emitLinef("struct %s {}", args)
		g.emitLine("")
		g.emitLinef("fn decode_%s_args(_data: &[u8]) -> Result<%s, ProgramError> {", name, args)
		g.emitLinef("    Ok(%s {})", args)
		g.emitLine("}")
	} else {
		g.emitLinef("struct %s {", args)
		g.incIndent()
		for _, f := range h.Args.Fields {
			g.emitLinef("pub %s: %s,", ident(f.Name), rustType(f.Type))
		}
		g.decIndent()
		g.emitLine("}")
		g.emitLine("")
		g.emitLinef("fn decode_%s_args(data: &[u8]) -> Result<%s, ProgramError> {", name, args)
		g.incIndent()
		for _, f := range h.Args.Fields {
			g.emitLinef("let %s = read_%s(data, %d)?;", ident(f.Name), f.Type, f.Offset)
		}
		g.emitLinef("Ok(%s {", args)
		g.incIndent()
		for _, f := range h.Args.Fields {
			g.emitLinef("%s,", ident(f.Name))
		}
		g.decIndent()
		g.emitLine("})")
		g.decIndent()
		g.emitLine("}")
	}
	g.emitLine("")

	g.emitLine("#[allow(unused_variables)]")
	g.emitLinef("fn handle_%s(", name)
	g.emitLine("    program_id: &Pubkey,")
	g.emitLine("    accounts: &[AccountInfo],")
	g.emitLine("    data: &[u8],")
	g.emitLine(") -> ProgramResult {")
	g.incIndent()
	g.emitLinef("if accounts.len() < %d {", h.MinAccounts())
	g.emitLine("    return Err(ProgramError::NotEnoughAccountKeys);")
	g.emitLine("}")
	g.emitLinef("let args = decode_%s_args(data)?;", name)
	for _, s := range h.Slots {
		g.emitLinef("let %s = &accounts[%d];", ident(s.Name), s.Index)
	}
	v := &stepRenderer{g: g, h: h}
	for _, s := range h.Steps {
		if err := onchain.WalkStep(s, v); err != nil {
			return err
		}
	}
	g.emitLine("Ok(())")
	g.decIndent()
	g.emitLine("}")
	return nil
}

// stepRenderer emits the statements of one handler body.
type stepRenderer struct {
	g *generator
	h *onchain.Handler
}

func (r *stepRenderer) VisitCheckSigner(s onchain.CheckSigner) error {
	r.g.emitLinef("if !%s.is_signer() { return Err(ProgramError::MissingRequiredSignature); }", ident(s.Slot))
	return nil
}

func (r *stepRenderer) VisitCheckWritable(s onchain.CheckWritable) error {
	r.g.emitLinef("if !%s.is_writable() { return Err(ProgramError::InvalidAccountData); }", ident(s.Slot))
	return nil
}

func (r *stepRenderer) VisitDerivePDA(s onchain.DerivePDA) error {
	lets, refs, err := seedList(s.Slot, s.Seeds)
	if err != nil {
		return err
	}
	for _, l := range lets {
		r.g.emitLine(l)
	}
	v := snake(s.Slot)
	r.g.emitLinef("let (%s_key, %s_bump) = pubkey::find_program_address(&[%s], program_id);", v, v, strings.Join(refs, ", "))
	r.g.emitLinef("if %s.key() != &%s_key { return Err(ProgramError::InvalidSeeds); }", ident(s.Slot), v)
	return nil
}

func (r *stepRenderer) VisitCheckAddress(s onchain.CheckAddress) error {
	want, err := render(s.Address)
	if err != nil {
		return err
	}
	if strings.HasPrefix(want, "*") {
		want = strings.TrimPrefix(want, "*")
	} else {
		want = "&" + want
	}
	r.g.emitLinef("if %s.key() != %s { return Err(ProgramError::InvalidAccountData); }", ident(s.Slot), want)
	return nil
}

func (r *stepRenderer) VisitCheckAssociated(s onchain.CheckAssociated) error {
	v := snake(s.Slot)
	lets, refs, err := seedList(v+"_ata", []onchain.Node{s.Owner, s.Mint})
	if err != nil {
		return err
	}
	if len(refs) != 2 {
		return fmt.Errorf("associated account %q: owner and mint must be pubkeys", s.Slot)
	}
	for _, l := range lets {
		r.g.emitLine(l)
	}
	r.g.emitLinef("let (%s_ata, _) = pubkey::find_program_address(&[%s, TOKEN_PROGRAM_ID.as_ref(), %s], &ASSOCIATED_TOKEN_PROGRAM_ID);",
		v, refs[0], refs[1])
	r.g.emitLinef("if %s.key() != &%s_ata { return Err(ProgramError::InvalidSeeds); }", ident(s.Slot), v)
	return nil
}

func (r *stepRenderer) VisitCheckProgram(s onchain.CheckProgram) error {
	r.g.emitLinef("if %s.key() != &%s { return Err(ProgramError::IncorrectProgramId); }", ident(s.Slot), programID(s.Program))
	return nil
}

// signer emits the signer proof of a PDA slot.
func (r *stepRenderer) signer(slot string, seeds []onchain.Node) error {
	lets, refs, err := seedList(slot, seeds)
	if err != nil {
		return err
	}
	for _, l := range lets {
		r.g.emitLine(l)
	}
	v := snake(slot)
	r.g.emitLinef("let %s_bump_ref = [%s_bump];", v, v)
	r.g.emitLinef("let %s_seeds = seeds!(%s, &%s_bump_ref);", v, strings.Join(refs, ", "), v)
	r.g.emitLinef("let %s_signer = Signer::from(&%s_seeds);", v, v)
	return nil
}

func (r *stepRenderer) VisitBuildSigner(s onchain.BuildSigner) error {
	return r.signer(s.Slot, s.Seeds)
}

func (r *stepRenderer) VisitCheckOwner(s onchain.CheckOwner) error {
	r.g.emitLinef("if !%s.is_owned_by(program_id) {", ident(s.Slot))
	r.g.emitLine("    return Err(ProgramError::IncorrectProgramId);")
	r.g.emitLine("}")
	return nil
}

func (r *stepRenderer) VisitLoadState(s onchain.LoadState) error {
	r.g.emitLinef("let mut %s = %s::load(%s)?;", stateVar(s.Slot), pascal(s.Layout.Name), ident(s.Slot))
	return nil
}

func (r *stepRenderer) VisitEnsureAccount(s onchain.EnsureAccount) error {
	slot := ident(s.Slot)
	state := pascal(s.Layout.Name)
	r.g.emitLinef("if !%s.is_owned_by(program_id) {", slot)
	r.g.incIndent()
	if len(s.Seeds) > 0 {
		if err := r.signer(s.Slot, s.Seeds); err != nil {
			return err
		}
		r.g.emitLinef("create_program_account(%s, %s, program_id, %s::LEN, Some(&%s_signer))?;", ident(s.Payer), slot, state, snake(s.Slot))
	} else {
		r.g.emitLinef("create_program_account(%s, %s, program_id, %s::LEN, None)?;", ident(s.Payer), slot, state)
	}
	r.g.decIndent()
	r.g.emitLine("}")
	r.g.emitLinef("if !%s.is_owned_by(program_id) { return Err(ProgramError::IncorrectProgramId); }", slot)
	return nil
}

// stores evaluates every value into a temporary before assigning any, so
// later values observe the record as it was before the op.
func (r *stepRenderer) stores(slot string, fields []onchain.FieldStore) error {
	for _, fs := range fields {
		v, err := valueAs(fs.Value, fs.Field.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", fs.Field.Name, err)
		}
		r.g.emitLinef("let next_%s = %s;", snake(fs.Field.Name), v)
	}
	for _, fs := range fields {
		r.g.emitLinef("%s.%s = next_%s;", stateVar(slot), ident(fs.Field.Name), snake(fs.Field.Name))
	}
	return nil
}

func (r *stepRenderer) VisitInitState(s onchain.InitState) error {
	state := pascal(s.Layout.Name)
	r.g.emitLinef("let mut %s = %s::load(%s)?;", stateVar(s.Slot), state, ident(s.Slot))
	if err := r.stores(s.Slot, s.Fields); err != nil {
		return err
	}
	r.g.emitLinef("%s::store(%s, &%s)?;", state, ident(s.Slot), stateVar(s.Slot))
	return nil
}

func (r *stepRenderer) VisitUpdateState(s onchain.UpdateState) error {
	if err := r.stores(s.Slot, s.Fields); err != nil {
		return err
	}
	r.g.emitLinef("%s::store(%s, &%s)?;", pascal(s.Layout.Name), ident(s.Slot), stateVar(s.Slot))
	return nil
}

var tokenCalls = map[ir.OpKind]struct {
	name   string
	fields [3]string
}{
	ir.OpTokenTransfer: {"Transfer", [3]string{"source", "destination", "authority"}},
	ir.OpTokenMintTo:   {"MintTo", [3]string{"mint", "destination", "authority"}},
	ir.OpTokenBurn:     {"Burn", [3]string{"source", "mint", "authority"}},
}

func (r *stepRenderer) VisitInvokeToken(s onchain.InvokeToken) error {
	call, ok := tokenCalls[s.Kind]
	if !ok {
		return fmt.Errorf("unsupported token op %q", s.Kind)
	}
	if len(s.Accounts) != 3 {
		return fmt.Errorf("token op %q takes 3 accounts, got %d", s.Kind, len(s.Accounts))
	}
	amount, err := num(s.Amount)
	if err != nil {
		return err
	}
	r.g.emitLinef("%s {", call.name)
	r.g.incIndent()
	for i, f := range call.fields {
		r.g.emitLinef("%s: %s,", f, ident(s.Accounts[i]))
	}
	r.g.emitLinef("amount: %s,", amount)
	r.g.emitLinef("program_id: Some(%s.key()),", ident(s.Program))
	r.g.decIndent()
	if s.Signer != "" {
		r.g.emitLinef("}.invoke_signed(&[%s_signer])?;", snake(s.Signer))
	} else {
		r.g.emitLine("}.invoke()?;")
	}
	return nil
}

func (r *stepRenderer) VisitEmitEvent(s onchain.EmitEvent) error {
	r.g.emitLinef("sol_log(%q);", s.Name)
	for i, f := range s.Fields {
		v, err := render(f.Value)
		if err != nil {
			return err
		}
		if onchain.NodeType(f.Value) == ir.Pubkey {
			r.g.emitLinef("pubkey::log(&%s);", strings.TrimPrefix(v, "*"))
			continue
		}
		n, err := num(f.Value)
		if err != nil {
			return err
		}
		r.g.emitLinef("sol_log_64(%d, %s, 0, 0, 0);", i, n)
	}
	return nil
}
