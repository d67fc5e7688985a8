package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/dsl"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/programs"
)

func counterDoc(t *testing.T) *ir.Document {
	t.Helper()
	doc, err := Build(counter())
	require.NoError(t, err)
	return doc
}

func codes(errs []ValidationError) []string {
	return ValidationErrors(errs).Codes()
}

func appendInstruction(doc *ir.Document, ix ir.IxDef) {
	if ix.Args == nil {
		ix.Args = ir.Schema{}
	}
	doc.Instructions = append(doc.Instructions, ir.Instruction{Discriminator: len(doc.Instructions), IxDef: ix})
}

func TestValidateExamplePrograms(t *testing.T) {
	for _, name := range programs.Names() {
		p, err := programs.Lookup(name)
		require.NoError(t, err)
		_, err = Build(p)
		assert.NoError(t, err, name)
	}
}

func TestValidateReservedArgName(t *testing.T) {
	doc := counterDoc(t)
	doc.Instructions[1].Args = append(doc.Instructions[1].Args, dsl.Field(ReservedArgName, dsl.U64()))

	errs := Validate(doc)
	require.Equal(t, []string{ErrReservedArgName}, codes(errs))
	assert.Equal(t, "instructions[add].args.instructionDiscriminator", errs[0].Field)
}

func TestValidateUndefinedArg(t *testing.T) {
	doc := counterDoc(t)
	doc.Instructions[1].Ops[0] = dsl.Update("counter",
		dsl.To("count", dsl.Add(dsl.FieldOf("counter", "count"), dsl.Arg("bye"))))

	errs := Validate(doc)
	require.Equal(t, []string{ErrUndefinedArg}, codes(errs))
	assert.Contains(t, errs[0].Message, `did you mean "by"?`)
}

func TestValidateUndefinedSlot(t *testing.T) {
	doc := counterDoc(t)
	doc.Instructions[1].Ops[1] = dsl.Emit("Added", dsl.Set("who", dsl.AccountRef("ownr")))

	errs := Validate(doc)
	require.Equal(t, []string{ErrUndefinedSlot}, codes(errs))
	assert.Equal(t, "instructions[add].ops[1].data.who", errs[0].Field)
	assert.Contains(t, errs[0].Message, `did you mean "owner"?`)
}

func TestValidateUndefinedField(t *testing.T) {
	doc := counterDoc(t)
	doc.Instructions[1].Ops[0] = dsl.Update("counter",
		dsl.To("count", dsl.Add(dsl.FieldOf("counter", "cont"), dsl.Arg("by"))))

	errs := Validate(doc)
	require.Equal(t, []string{ErrUndefinedField}, codes(errs))
	assert.Contains(t, errs[0].Message, "counter.cont")
	assert.Contains(t, errs[0].Message, `did you mean "count"?`)
}

func TestValidateViewFieldMustReadArgument(t *testing.T) {
	doc := counterDoc(t)
	doc.Views = append(doc.Views, ir.ViewDef{
		Name:    "peek",
		Args:    dsl.Schema(dsl.Field("who", dsl.Pubkey())),
		Returns: ir.Returns{dsl.Return("count", dsl.U64(), dsl.FieldOf("counter", "count"))},
	})

	assert.Equal(t, []string{ErrUndefinedField}, codes(Validate(doc)))
}

func TestValidatePdaConflict(t *testing.T) {
	doc := counterDoc(t)
	ix := &doc.Instructions[1]
	ix.Accounts[1].Pda = dsl.PDA(dsl.Lit("counter2"), dsl.AccountRef("owner"))

	errs := Validate(doc)
	require.Equal(t, []string{ErrPdaConflict}, codes(errs))
	assert.Equal(t, "instructions[add].accounts[counter].pda", errs[0].Field)
	assert.Contains(t, errs[0].Message, "accounts[counter].pda")
}

func TestValidateSamePdaAcrossInstructions(t *testing.T) {
	doc, err := Build(programs.Vault())
	require.NoError(t, err)

	// deposit declares vault without seeds; only seeded slots are compared.
	deposit, ok := doc.Instruction("deposit")
	require.True(t, ok)
	m, _, ok := deposit.Slot("vault")
	require.True(t, ok)
	assert.Nil(t, m.Pda)
	assert.Empty(t, Validate(doc))
}

func TestValidateMultipleInit(t *testing.T) {
	doc := counterDoc(t)
	open := &doc.Instructions[0]
	open.Ops = append(open.Ops, open.Ops[0])

	errs := Validate(doc)
	require.Equal(t, []string{ErrMultipleInit}, codes(errs))
	assert.Equal(t, "instructions[open].ops[1]", errs[0].Field)
}

func TestValidateReadBeforeInit(t *testing.T) {
	initCounter := func(count ir.Expr) ir.Op {
		return dsl.Init("counter",
			dsl.Set("owner", dsl.AccountRef("owner")),
			dsl.Set("count", count),
			dsl.Set("bump", dsl.Bump("counter")),
		)
	}
	cases := []struct {
		name   string
		mutate func(open *ir.Instruction)
		codes  []string
		field  string
	}{
		{
			name: "init reads its own field",
			mutate: func(open *ir.Instruction) {
				open.Ops[0] = initCounter(dsl.Add(dsl.FieldOf("counter", "count"), dsl.Const(1)))
			},
			codes: []string{ErrReadBeforeInit},
			field: "instructions[open].ops[0].fields.count",
		},
		{
			name: "event before init",
			mutate: func(open *ir.Instruction) {
				open.Ops = []ir.Op{dsl.Emit("Opened", dsl.Set("count", dsl.FieldOf("counter", "count"))), open.Ops[0]}
			},
			codes: []string{ErrReadBeforeInit},
			field: "instructions[open].ops[0].data.count",
		},
		{
			name: "update before init",
			mutate: func(open *ir.Instruction) {
				open.Ops = []ir.Op{dsl.Update("counter", dsl.To("count", dsl.Const(1))), open.Ops[0]}
			},
			codes: []string{ErrReadBeforeInit},
			field: "instructions[open].ops[0].account",
		},
		{
			name: "slot address reads the init target",
			mutate: func(open *ir.Instruction) {
				open.Accounts = append(open.Accounts, dsl.Mint("mint", dsl.FieldOf("counter", "owner")))
			},
			codes: []string{ErrReadBeforeInit},
			field: "instructions[open].accounts[mint].address",
		},
		{
			name: "event after init",
			mutate: func(open *ir.Instruction) {
				open.Ops = append(open.Ops, dsl.Emit("Opened", dsl.Set("count", dsl.FieldOf("counter", "count"))))
			},
			codes: []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := counterDoc(t)
			tc.mutate(&doc.Instructions[0])

			errs := Validate(doc)
			require.Equal(t, tc.codes, codes(errs))
			if tc.field != "" {
				assert.Equal(t, tc.field, errs[0].Field)
			}
		})
	}
}

func TestValidateUnsupportedTypes(t *testing.T) {
	t.Run("arg type", func(t *testing.T) {
		doc := counterDoc(t)
		doc.Instructions[1].Args = append(doc.Instructions[1].Args, ir.Field{Name: "x", Type: "u32"})
		assert.Equal(t, []string{ErrUnsupportedType}, codes(Validate(doc)))
	})

	t.Run("mint address is not a pubkey", func(t *testing.T) {
		doc := counterDoc(t)
		doc.Instructions[1].Accounts = append(doc.Instructions[1].Accounts, dsl.Mint("mint", dsl.Arg("by")))
		errs := Validate(doc)
		require.Equal(t, []string{ErrUnsupportedType}, codes(errs))
		assert.Equal(t, "instructions[add].accounts[mint].address", errs[0].Field)
	})

	t.Run("signer is not the authority", func(t *testing.T) {
		doc, err := Build(programs.Vault())
		require.NoError(t, err)
		deposit, ok := doc.Instruction("deposit")
		require.True(t, ok)
		mint := deposit.Ops[1].(ir.TokenMintTo)
		mint.Signer = "user"
		deposit.Ops[1] = mint

		errs := Validate(doc)
		require.Equal(t, []string{ErrUnsupportedType}, codes(errs))
		assert.Equal(t, "instructions[deposit].ops[1].signer", errs[0].Field)
	})

	t.Run("token source must be writable", func(t *testing.T) {
		doc, err := Build(programs.Vault())
		require.NoError(t, err)
		deposit, ok := doc.Instruction("deposit")
		require.True(t, ok)
		_, idx, ok := deposit.Slot("userUnderlying")
		require.True(t, ok)
		deposit.Accounts[idx].Writable = false

		errs := Validate(doc)
		require.Equal(t, []string{ErrUnsupportedType}, codes(errs))
		assert.Equal(t, "instructions[deposit].ops[0].from", errs[0].Field)
	})

	t.Run("if condition must compare", func(t *testing.T) {
		doc := counterDoc(t)
		doc.Instructions[1].Ops[0] = dsl.Update("counter",
			dsl.To("count", dsl.If(dsl.Arg("by"), dsl.Const(1), dsl.Const(2))))
		assert.Equal(t, []string{ErrUnsupportedType}, codes(Validate(doc)))
	})
}

func TestValidateDuplicateNames(t *testing.T) {
	doc := counterDoc(t)
	doc.Views = append(doc.Views, ir.ViewDef{Name: "add", Args: ir.Schema{}, Returns: ir.Returns{}})

	errs := Validate(doc)
	require.Equal(t, []string{ErrDuplicateName}, codes(errs))
	assert.Contains(t, errs[0].Message, "already declared as instruction")
}

func TestValidateStateTargets(t *testing.T) {
	t.Run("slot without state", func(t *testing.T) {
		doc := counterDoc(t)
		doc.Instructions[1].Ops[0] = dsl.Update("owner", dsl.To("count", dsl.Arg("by")))
		assert.Equal(t, []string{ErrInvalidStateTarget}, codes(Validate(doc)))
	})

	t.Run("init leaves fields unset", func(t *testing.T) {
		doc := counterDoc(t)
		doc.Instructions[0].Ops[0] = dsl.Init("counter",
			dsl.Set("owner", dsl.AccountRef("owner")),
			dsl.Set("count", dsl.Const(0)),
		)
		errs := Validate(doc)
		require.Equal(t, []string{ErrInvalidStateTarget}, codes(errs))
		assert.Contains(t, errs[0].Message, "[bump]")
	})

	t.Run("unknown field", func(t *testing.T) {
		doc := counterDoc(t)
		doc.Instructions[1].Ops[0] = dsl.Update("counter", dsl.To("cuont", dsl.Arg("by")))
		errs := Validate(doc)
		require.Equal(t, []string{ErrInvalidStateTarget}, codes(errs))
		assert.Contains(t, errs[0].Message, `did you mean "count"?`)
	})
}

func TestValidateSeedCycles(t *testing.T) {
	t.Run("mutual", func(t *testing.T) {
		doc := counterDoc(t)
		appendInstruction(doc, ir.IxDef{
			Name: "tangle",
			Accounts: []ir.AccountMeta{
				dsl.Meta("a", dsl.WithPDA(dsl.PDA(dsl.Lit("a"), dsl.AccountRef("b")))),
				dsl.Meta("b", dsl.WithPDA(dsl.PDA(dsl.Lit("b"), dsl.AccountRef("a")))),
			},
		})
		errs := Validate(doc)
		require.Equal(t, []string{ErrSeedCycle}, codes(errs))
		assert.Equal(t, "PDA seed cycle: a -> b -> a", errs[0].Message)
	})

	t.Run("self", func(t *testing.T) {
		doc := counterDoc(t)
		appendInstruction(doc, ir.IxDef{
			Name:     "knot",
			Accounts: []ir.AccountMeta{dsl.Meta("x", dsl.WithPDA(dsl.PDA(dsl.AccountRef("x"))))},
		})
		errs := Validate(doc)
		require.Equal(t, []string{ErrSeedCycle}, codes(errs))
		assert.Equal(t, `PDA seeds of "x" reference the slot itself`, errs[0].Message)
	})
}

func TestValidateLimits(t *testing.T) {
	t.Run("long literal seed", func(t *testing.T) {
		doc := counterDoc(t)
		appendInstruction(doc, ir.IxDef{
			Name:     "big",
			Accounts: []ir.AccountMeta{dsl.Meta("big", dsl.WithPDA(dsl.PDA(dsl.Lit(strings.Repeat("s", 33)))))},
		})
		errs := Validate(doc)
		require.Equal(t, []string{ErrLimitExceeded}, codes(errs))
		assert.Equal(t, "instructions[big].accounts[big].pda.seeds[0]", errs[0].Field)
	})

	t.Run("bump counts as a seed", func(t *testing.T) {
		seeds := make([]ir.Seed, 16)
		for i := range seeds {
			seeds[i] = dsl.Lit("s")
		}
		doc := counterDoc(t)
		appendInstruction(doc, ir.IxDef{
			Name:     "wide",
			Accounts: []ir.AccountMeta{dsl.Meta("wide", dsl.WithPDA(dsl.PDA(seeds...)))},
		})
		assert.Equal(t, []string{ErrLimitExceeded}, codes(Validate(doc)))
	})

	t.Run("fifteen seeds fit", func(t *testing.T) {
		seeds := make([]ir.Seed, 15)
		for i := range seeds {
			seeds[i] = dsl.Lit("s")
		}
		doc := counterDoc(t)
		appendInstruction(doc, ir.IxDef{
			Name:     "wide",
			Accounts: []ir.AccountMeta{dsl.Meta("wide", dsl.WithPDA(dsl.PDA(seeds...)))},
		})
		assert.Empty(t, Validate(doc))
	})
}

func TestValidateBumpWithoutPda(t *testing.T) {
	doc := counterDoc(t)
	doc.Instructions[1].Ops[1] = dsl.Emit("Added", dsl.Set("bump", dsl.Bump("owner")))

	assert.Equal(t, []string{ErrBumpWithoutPda}, codes(Validate(doc)))
}

func TestValidateDiscriminatorPosition(t *testing.T) {
	doc := counterDoc(t)
	doc.Instructions[1].Discriminator = 5

	errs := Validate(doc)
	require.Equal(t, []string{ErrMalformedDeclaration}, codes(errs))
	assert.Equal(t, "instructions[add].discriminator", errs[0].Field)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	doc := counterDoc(t)
	doc.Instructions[1].Args = append(doc.Instructions[1].Args, dsl.Field(ReservedArgName, dsl.U64()))
	doc.Instructions[1].Ops[1] = dsl.Emit("Added", dsl.Set("bump", dsl.Bump("owner")))

	assert.Equal(t, []string{ErrReservedArgName, ErrBumpWithoutPda}, codes(Validate(doc)))
}

func TestValidationErrorsFormat(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "first", Code: ErrUndefinedArg},
		{Field: "b", Message: "second", Code: ErrUndefinedSlot},
	}
	assert.Equal(t, "2 validation errors:\n  [E102] a: first\n  [E103] b: second", errs.Error())
	assert.Equal(t, "[E102] a: first", errs[:1].Error())
}

func TestSuggest(t *testing.T) {
	assert.Equal(t, ` (did you mean "amount"?)`, suggest("amout", []string{"shares", "amount"}))
	assert.Equal(t, "", suggest("zzz", []string{"amount"}))
	assert.Equal(t, "", suggest("x", nil))
}
