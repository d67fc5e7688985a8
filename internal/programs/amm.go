package programs

import (
	"github.com/roach88/solforge/internal/dsl"
	"github.com/roach88/solforge/internal/ir"
)

// AmmAddress is the program address of the constant-product pool.
const AmmAddress = "4mm1hQK4R7c1yD4g8MsjvKZxQxJ7f5WmB1a2c3d4e5f6"

// Amm is a two-token pool with LP shares and fee-less swaps priced by
// out = in * reserveOut / (reserveIn + in).
func Amm() *dsl.Program {
	poolPda := dsl.PDA(dsl.Lit("pool"), dsl.Arg("tokenMintA"), dsl.Arg("tokenMintB"))
	authorityPda := dsl.PDA(dsl.Lit("authority"), dsl.AccountRef("pool"))

	reserveA := dsl.FieldOf("pool", "reserveA")
	reserveB := dsl.FieldOf("pool", "reserveB")
	totalLp := dsl.FieldOf("pool", "totalLp")
	mintA := dsl.FieldOf("pool", "tokenMintA")
	mintB := dsl.FieldOf("pool", "tokenMintB")
	lpMint := dsl.FieldOf("pool", "lpMint")

	p := dsl.NewProgram("Amm", AmmAddress)

	p.Account("pool", ir.AccountDef{
		Name: "PoolState",
		Schema: dsl.Schema(
			dsl.Field("admin", dsl.Pubkey()),
			dsl.Field("tokenMintA", dsl.Pubkey()),
			dsl.Field("tokenMintB", dsl.Pubkey()),
			dsl.Field("lpMint", dsl.Pubkey()),
			dsl.Field("reserveA", dsl.U64()),
			dsl.Field("reserveB", dsl.U64()),
			dsl.Field("totalLp", dsl.U64()),
			dsl.Field("bump", dsl.U8()),
		),
		Pda: poolPda,
	})

	p.Instruction(ir.IxDef{
		Name: "createPool",
		Args: dsl.Schema(
			dsl.Field("tokenMintA", dsl.Pubkey()),
			dsl.Field("tokenMintB", dsl.Pubkey()),
			dsl.Field("lpMint", dsl.Pubkey()),
		),
		Accounts: []ir.AccountMeta{
			dsl.Meta("payer", dsl.Signer(), dsl.Writable()),
			dsl.Meta("pool", dsl.Writable(), dsl.WithPDA(poolPda)),
			dsl.Meta("poolAuthority", dsl.WithPDA(authorityPda)),
			dsl.Mint("tokenMintA", dsl.Arg("tokenMintA")),
			dsl.Mint("tokenMintB", dsl.Arg("tokenMintB")),
			dsl.Mint("lpMint", dsl.Arg("lpMint"), dsl.Writable()),
			dsl.ATA("vaultA", dsl.AccountRef("poolAuthority"), dsl.Arg("tokenMintA"), dsl.Writable()),
			dsl.ATA("vaultB", dsl.AccountRef("poolAuthority"), dsl.Arg("tokenMintB"), dsl.Writable()),
			dsl.ProgramSlot("tokenProgram"),
		},
		Ops: []ir.Op{
			dsl.Init("pool",
				dsl.Set("admin", dsl.AccountRef("payer")),
				dsl.Set("tokenMintA", dsl.Arg("tokenMintA")),
				dsl.Set("tokenMintB", dsl.Arg("tokenMintB")),
				dsl.Set("lpMint", dsl.Arg("lpMint")),
				dsl.Set("reserveA", dsl.Const(0)),
				dsl.Set("reserveB", dsl.Const(0)),
				dsl.Set("totalLp", dsl.Const(0)),
				dsl.Set("bump", dsl.Bump("pool")),
			),
		},
	})

	traderAccounts := func() []ir.AccountMeta {
		return []ir.AccountMeta{
			dsl.Meta("user", dsl.Signer()),
			dsl.Meta("pool", dsl.Writable()),
			dsl.Meta("poolAuthority", dsl.WithPDA(authorityPda)),
			dsl.ATA("userA", dsl.AccountRef("user"), mintA, dsl.Writable()),
			dsl.ATA("userB", dsl.AccountRef("user"), mintB, dsl.Writable()),
			dsl.ATA("vaultA", dsl.AccountRef("poolAuthority"), mintA, dsl.Writable()),
			dsl.ATA("vaultB", dsl.AccountRef("poolAuthority"), mintB, dsl.Writable()),
		}
	}

	lpToMint := dsl.If(
		dsl.Eq(totalLp, dsl.Const(0)),
		dsl.Arg("amountA"),
		dsl.Div(dsl.Mul(dsl.Arg("amountA"), totalLp), reserveA),
	)

	p.Instruction(ir.IxDef{
		Name: "addLiquidity",
		Args: dsl.Schema(
			dsl.Field("amountA", dsl.U64()),
			dsl.Field("amountB", dsl.U64()),
		),
		Accounts: append(traderAccounts(),
			dsl.Mint("lpMint", lpMint, dsl.Writable()),
			dsl.ATA("userLp", dsl.AccountRef("user"), lpMint, dsl.Writable()),
			dsl.ProgramSlot("tokenProgram"),
		),
		Ops: []ir.Op{
			dsl.Transfer("userA", "vaultA", "user", dsl.Arg("amountA")),
			dsl.Transfer("userB", "vaultB", "user", dsl.Arg("amountB")),
			dsl.MintTo("lpMint", "userLp", "poolAuthority", lpToMint, dsl.SignedBy("poolAuthority")),
			dsl.Update("pool",
				dsl.To("reserveA", dsl.Add(reserveA, dsl.Arg("amountA"))),
				dsl.To("reserveB", dsl.Add(reserveB, dsl.Arg("amountB"))),
				dsl.To("totalLp", dsl.Add(totalLp, lpToMint)),
			),
		},
	})

	amountAOut := dsl.Div(dsl.Mul(dsl.Arg("lpAmount"), reserveA), totalLp)
	amountBOut := dsl.Div(dsl.Mul(dsl.Arg("lpAmount"), reserveB), totalLp)

	p.Instruction(ir.IxDef{
		Name: "removeLiquidity",
		Args: dsl.Schema(dsl.Field("lpAmount", dsl.U64())),
		Accounts: []ir.AccountMeta{
			dsl.Meta("user", dsl.Signer()),
			dsl.Meta("pool", dsl.Writable()),
			dsl.Meta("poolAuthority", dsl.WithPDA(authorityPda)),
			dsl.ATA("userLp", dsl.AccountRef("user"), lpMint, dsl.Writable()),
			dsl.Mint("lpMint", lpMint, dsl.Writable()),
			dsl.ATA("userA", dsl.AccountRef("user"), mintA, dsl.Writable()),
			dsl.ATA("userB", dsl.AccountRef("user"), mintB, dsl.Writable()),
			dsl.ATA("vaultA", dsl.AccountRef("poolAuthority"), mintA, dsl.Writable()),
			dsl.ATA("vaultB", dsl.AccountRef("poolAuthority"), mintB, dsl.Writable()),
			dsl.ProgramSlot("tokenProgram"),
		},
		Ops: []ir.Op{
			dsl.Burn("lpMint", "userLp", "user", dsl.Arg("lpAmount")),
			dsl.Transfer("vaultA", "userA", "poolAuthority", amountAOut, dsl.SignedBy("poolAuthority")),
			dsl.Transfer("vaultB", "userB", "poolAuthority", amountBOut, dsl.SignedBy("poolAuthority")),
			dsl.Update("pool",
				dsl.To("reserveA", dsl.Sub(reserveA, amountAOut)),
				dsl.To("reserveB", dsl.Sub(reserveB, amountBOut)),
				dsl.To("totalLp", dsl.Sub(totalLp, dsl.Arg("lpAmount"))),
			),
		},
	})

	swapAOut := dsl.Div(dsl.Mul(dsl.Arg("amountIn"), reserveB), dsl.Add(reserveA, dsl.Arg("amountIn")))

	p.Instruction(ir.IxDef{
		Name:     "swapAForB",
		Args:     dsl.Schema(dsl.Field("amountIn", dsl.U64())),
		Accounts: append(traderAccounts(), dsl.ProgramSlot("tokenProgram")),
		Ops: []ir.Op{
			dsl.Transfer("userA", "vaultA", "user", dsl.Arg("amountIn")),
			dsl.Transfer("vaultB", "userB", "poolAuthority", swapAOut, dsl.SignedBy("poolAuthority")),
			dsl.Update("pool",
				dsl.To("reserveA", dsl.Add(reserveA, dsl.Arg("amountIn"))),
				dsl.To("reserveB", dsl.Sub(reserveB, swapAOut)),
			),
		},
	})

	swapBOut := dsl.Div(dsl.Mul(dsl.Arg("amountIn"), reserveA), dsl.Add(reserveB, dsl.Arg("amountIn")))

	p.Instruction(ir.IxDef{
		Name:     "swapBForA",
		Args:     dsl.Schema(dsl.Field("amountIn", dsl.U64())),
		Accounts: append(traderAccounts(), dsl.ProgramSlot("tokenProgram")),
		Ops: []ir.Op{
			dsl.Transfer("userB", "vaultB", "user", dsl.Arg("amountIn")),
			dsl.Transfer("vaultA", "userA", "poolAuthority", swapBOut, dsl.SignedBy("poolAuthority")),
			dsl.Update("pool",
				dsl.To("reserveA", dsl.Sub(reserveA, swapBOut)),
				dsl.To("reserveB", dsl.Add(reserveB, dsl.Arg("amountIn"))),
			),
		},
	})

	p.View(ir.ViewDef{
		Name: "poolSummary",
		Args: dsl.Schema(dsl.Field("pool", dsl.Pubkey())),
		Returns: ir.Returns{
			dsl.Return("tokenMintA", dsl.Pubkey()),
			dsl.Return("tokenMintB", dsl.Pubkey()),
			dsl.Return("lpMint", dsl.Pubkey()),
			dsl.Return("reserveA", dsl.U64()),
			dsl.Return("reserveB", dsl.U64()),
			dsl.Return("totalLp", dsl.U64()),
			dsl.Ratio("priceAInB", reserveB, reserveA),
			dsl.Ratio("priceBInA", reserveA, reserveB),
		},
	})

	return p
}
