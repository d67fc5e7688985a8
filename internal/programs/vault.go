package programs

import (
	"github.com/roach88/solforge/internal/dsl"
	"github.com/roach88/solforge/internal/ir"
)

// VaultAddress is the program address of the share vault.
const VaultAddress = "GTcXWNZ8Ytmkcgzfr3V1R9X3tHxo7hC49DUh7ggMzvCV"

// Vault is a single-asset share vault. Depositors receive shares pro rata
// to the underlying already held; withdrawing burns shares for the
// proportional underlying.
func Vault() *dsl.Program {
	vaultPda := dsl.PDA(dsl.Lit("vault"), dsl.Arg("underlyingMint"))
	authorityPda := dsl.PDA(dsl.Lit("authority"), dsl.AccountRef("vault"))

	totalShares := dsl.FieldOf("vault", "totalShares")
	totalDeposits := dsl.FieldOf("vault", "totalDeposits")
	underlyingMint := dsl.FieldOf("vault", "underlyingMint")
	shareMint := dsl.FieldOf("vault", "shareMint")

	p := dsl.NewProgram("Vault", VaultAddress)

	p.Account("vault", ir.AccountDef{
		Name: "VaultState",
		Schema: dsl.Schema(
			dsl.Field("admin", dsl.Pubkey()),
			dsl.Field("underlyingMint", dsl.Pubkey()),
			dsl.Field("shareMint", dsl.Pubkey()),
			dsl.Field("totalDeposits", dsl.U64()),
			dsl.Field("totalShares", dsl.U64()),
			dsl.Field("bump", dsl.U8()),
		),
		Pda: vaultPda,
	})

	p.Instruction(ir.IxDef{
		Name: "createVault",
		Args: dsl.Schema(
			dsl.Field("underlyingMint", dsl.Pubkey()),
			dsl.Field("shareMint", dsl.Pubkey()),
		),
		Accounts: []ir.AccountMeta{
			dsl.Meta("payer", dsl.Signer(), dsl.Writable()),
			dsl.Meta("vault", dsl.Writable(), dsl.WithPDA(vaultPda)),
			dsl.Meta("vaultAuthority", dsl.WithPDA(authorityPda)),
			dsl.Mint("underlyingMint", dsl.Arg("underlyingMint")),
			dsl.Mint("shareMint", dsl.Arg("shareMint"), dsl.Writable()),
			dsl.ATA("vaultUnderlying", dsl.AccountRef("vaultAuthority"), dsl.Arg("underlyingMint"), dsl.Writable()),
			dsl.ProgramSlot("tokenProgram"),
		},
		Ops: []ir.Op{
			dsl.Init("vault",
				dsl.Set("admin", dsl.AccountRef("payer")),
				dsl.Set("underlyingMint", dsl.Arg("underlyingMint")),
				dsl.Set("shareMint", dsl.Arg("shareMint")),
				dsl.Set("totalDeposits", dsl.Const(0)),
				dsl.Set("totalShares", dsl.Const(0)),
				dsl.Set("bump", dsl.Bump("vault")),
			),
		},
	})

	sharesToMint := dsl.If(
		dsl.Eq(totalShares, dsl.Const(0)),
		dsl.Arg("amount"),
		dsl.Div(dsl.Mul(dsl.Arg("amount"), totalShares), totalDeposits),
	)

	p.Instruction(ir.IxDef{
		Name: "deposit",
		Args: dsl.Schema(dsl.Field("amount", dsl.U64())),
		Accounts: []ir.AccountMeta{
			dsl.Meta("user", dsl.Signer()),
			dsl.Meta("vault", dsl.Writable()),
			dsl.Meta("vaultAuthority", dsl.WithPDA(authorityPda)),
			dsl.ATA("userUnderlying", dsl.AccountRef("user"), underlyingMint, dsl.Writable()),
			dsl.ATA("vaultUnderlying", dsl.AccountRef("vaultAuthority"), underlyingMint, dsl.Writable()),
			dsl.Mint("shareMint", shareMint, dsl.Writable()),
			dsl.ATA("userShares", dsl.AccountRef("user"), shareMint, dsl.Writable()),
			dsl.ProgramSlot("tokenProgram"),
		},
		Ops: []ir.Op{
			dsl.Transfer("userUnderlying", "vaultUnderlying", "user", dsl.Arg("amount")),
			dsl.MintTo("shareMint", "userShares", "vaultAuthority", sharesToMint, dsl.SignedBy("vaultAuthority")),
			dsl.Update("vault",
				dsl.To("totalDeposits", dsl.Add(totalDeposits, dsl.Arg("amount"))),
				dsl.To("totalShares", dsl.Add(totalShares, sharesToMint)),
			),
		},
	})

	underlyingToReturn := dsl.Div(dsl.Mul(dsl.Arg("shares"), totalDeposits), totalShares)

	p.Instruction(ir.IxDef{
		Name: "withdraw",
		Args: dsl.Schema(dsl.Field("shares", dsl.U64())),
		Accounts: []ir.AccountMeta{
			dsl.Meta("user", dsl.Signer()),
			dsl.Meta("vault", dsl.Writable()),
			dsl.Meta("vaultAuthority", dsl.WithPDA(authorityPda)),
			dsl.ATA("userShares", dsl.AccountRef("user"), shareMint, dsl.Writable()),
			dsl.Mint("shareMint", shareMint, dsl.Writable()),
			dsl.ATA("userUnderlying", dsl.AccountRef("user"), underlyingMint, dsl.Writable()),
			dsl.ATA("vaultUnderlying", dsl.AccountRef("vaultAuthority"), underlyingMint, dsl.Writable()),
			dsl.ProgramSlot("tokenProgram"),
		},
		Ops: []ir.Op{
			dsl.Burn("shareMint", "userShares", "user", dsl.Arg("shares")),
			dsl.Transfer("vaultUnderlying", "userUnderlying", "vaultAuthority", underlyingToReturn, dsl.SignedBy("vaultAuthority")),
			dsl.Update("vault",
				dsl.To("totalDeposits", dsl.Sub(totalDeposits, underlyingToReturn)),
				dsl.To("totalShares", dsl.Sub(totalShares, dsl.Arg("shares"))),
			),
		},
	})

	p.View(ir.ViewDef{
		Name: "vaultSummary",
		Args: dsl.Schema(dsl.Field("vault", dsl.Pubkey())),
		Returns: ir.Returns{
			dsl.Return("underlyingMint", dsl.Pubkey()),
			dsl.Return("shareMint", dsl.Pubkey()),
			dsl.Return("totalDeposits", dsl.U64()),
			dsl.Return("totalShares", dsl.U64()),
			dsl.Ratio("exchangeRate", totalDeposits, totalShares),
		},
	})

	return p
}
