// Package svm is a host emulator for lowered programs.
//
// It executes onchain.Program handlers against an in-memory Ledger the way
// the Solana runtime executes the rendered program: account privileges come
// from the transaction, cross-program invocations go through built-in
// system and token programs, and PDA signatures are checked by re-deriving
// the signer seeds under the calling program.
//
// EXECUTION MODEL:
//
// A call to Runtime.Process is one transaction. Instructions run in order
// against the live ledger. The first failing instruction restores the
// snapshot taken before the transaction, so a failed transaction leaves no
// trace in account state.
//
// Every processed transaction is stamped with the next slot from Clock, and
// each instruction is metered against a compute budget. Both are
// deterministic, which keeps scenario traces stable across runs.
package svm
