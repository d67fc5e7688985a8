// Package harness runs YAML scenarios against programs executing in the
// svm emulator.
//
// # Scenario Format
//
//	name: vault_deposit
//	description: "Deposits mint shares pro rata"
//	program: builtin:vault
//	accounts:
//	  vault: pda:vault
//	setup:
//	  pdas:
//	    - {name: vault, args: {underlyingMint: underlying}}
//	    - {name: vaultAuthority, accounts: {vault: pda:vault}}
//	  mints:
//	    - {name: underlying, authority: admin, decimals: 6}
//	    - {name: shares, authority: pda:vaultAuthority}
//	  token_accounts:
//	    - {owner: user, mint: underlying, amount: 5000}
//	    - {owner: pda:vaultAuthority, mint: underlying}
//	    - {owner: user, mint: shares}
//	flow:
//	  - invoke: createVault
//	    signers: [payer]
//	    args: {underlyingMint: underlying, shareMint: shares}
//	  - invoke: deposit
//	    args: {amount: 1000}
//	    expect: {ok: true}
//	assertions:
//	  - {type: state, account: pda:vault, expect: {totalDeposits: 1000}}
//	  - {type: balance, owner: user, mint: shares, expect: 1000}
//
// # Labels
//
// Every address in a scenario is a label. Plain labels are deterministic
// wallets (testutil.Keys). pda:<name> names an address declared under
// setup.pdas and derived through the client bindings, so a scenario uses
// exactly the addresses a client would. ata:<owner>/<mint> is the
// associated token account of two other labels. A base58 string is taken
// verbatim.
//
// Slots a step does not bind are resolved by the bindings: PDAs from
// their seeds, token accounts from owner and mint, program slots from
// the well-known ids. Unbound signer slots take the wallet named after
// the slot.
//
// # Assertion Types
//
//   - state: decodes a program account and compares fields
//   - balance: token account amount, by owner and mint or by account
//   - supply: mint supply
//   - view: evaluates a view over an account and compares returns
//   - event: an event name appears in the trace, optionally Count times
//
// # Deterministic Testing
//
// Slots come from a testutil.DeterministicClock and wallets from seeded
// keypairs, so the same scenario produces the same trace on every run.
// RunWithGolden compares that trace against testdata/golden.
package harness
