package svm

import (
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/token"
)

// token executes the built-in token program: transfer, mintTo and burn
// with a single-signature authority.
func (inv *invocation) token(infos []accountInfo, data []byte) error {
	cmd, amount, err := token.DecodeAmountInstruction(data)
	if err != nil {
		return onchain.ErrInvalidInstructionData
	}
	if len(infos) < 3 {
		return onchain.ErrNotEnoughAccountKeys
	}
	switch cmd {
	case token.CommandTransfer:
		return inv.tokenTransfer(infos[0], infos[1], infos[2], amount)
	case token.CommandMintTo:
		return inv.tokenMintTo(infos[0], infos[1], infos[2], amount)
	case token.CommandBurn:
		return inv.tokenBurn(infos[0], infos[1], infos[2], amount)
	}
	return onchain.ErrInvalidInstructionData
}

func (inv *invocation) loadTokenAccount(info accountInfo) (*Account, token.Account, error) {
	var t token.Account
	a := inv.rt.ledger.account(info.key).Clone()
	if a.Owner != token.ProgramKey {
		return nil, t, onchain.ErrIncorrectProgramID
	}
	if !t.Unmarshal(a.Data) || t.State == token.AccountStateUninitialized {
		return nil, t, TokenUninitialized
	}
	if t.State == token.AccountStateFrozen {
		return nil, t, TokenAccountFrozen
	}
	return a, t, nil
}

func (inv *invocation) loadMint(info accountInfo) (*Account, token.Mint, error) {
	var m token.Mint
	a := inv.rt.ledger.account(info.key).Clone()
	if a.Owner != token.ProgramKey {
		return nil, m, onchain.ErrIncorrectProgramID
	}
	if !m.Unmarshal(a.Data) {
		return nil, m, TokenInvalidMint
	}
	if !m.IsInitialized {
		return nil, m, TokenUninitialized
	}
	return a, m, nil
}

func checkAuthority(authority accountInfo, want solana.PublicKey) error {
	if authority.key != want {
		return TokenOwnerMismatch
	}
	if !authority.signer {
		return onchain.ErrMissingRequiredSignature
	}
	return nil
}

func (inv *invocation) tokenTransfer(src, dst, authority accountInfo, amount uint64) error {
	srcAcct, from, err := inv.loadTokenAccount(src)
	if err != nil {
		return err
	}
	dstAcct, to, err := inv.loadTokenAccount(dst)
	if err != nil {
		return err
	}
	if from.Mint != to.Mint {
		return TokenMintMismatch
	}
	if err := checkAuthority(authority, from.Owner); err != nil {
		return err
	}
	if from.Amount < amount {
		return TokenInsufficientFunds
	}
	if src.key == dst.key {
		return nil
	}
	if to.Amount+amount < to.Amount {
		return TokenOverflow
	}

	from.Amount -= amount
	to.Amount += amount
	srcAcct.Data = from.Marshal()
	dstAcct.Data = to.Marshal()
	if err := inv.write(token.ProgramKey, src, srcAcct); err != nil {
		return err
	}
	return inv.write(token.ProgramKey, dst, dstAcct)
}

func (inv *invocation) tokenMintTo(mintInfo, dst, authority accountInfo, amount uint64) error {
	mintAcct, mint, err := inv.loadMint(mintInfo)
	if err != nil {
		return err
	}
	dstAcct, to, err := inv.loadTokenAccount(dst)
	if err != nil {
		return err
	}
	if to.Mint != mintInfo.key {
		return TokenMintMismatch
	}
	if mint.MintAuthority.IsZero() {
		return TokenOwnerMismatch
	}
	if err := checkAuthority(authority, mint.MintAuthority); err != nil {
		return err
	}
	if mint.Supply+amount < mint.Supply || to.Amount+amount < to.Amount {
		return TokenOverflow
	}

	mint.Supply += amount
	to.Amount += amount
	mintAcct.Data = mint.Marshal()
	dstAcct.Data = to.Marshal()
	if err := inv.write(token.ProgramKey, dst, dstAcct); err != nil {
		return err
	}
	return inv.write(token.ProgramKey, mintInfo, mintAcct)
}

func (inv *invocation) tokenBurn(src, mintInfo, authority accountInfo, amount uint64) error {
	srcAcct, from, err := inv.loadTokenAccount(src)
	if err != nil {
		return err
	}
	mintAcct, mint, err := inv.loadMint(mintInfo)
	if err != nil {
		return err
	}
	if from.Mint != mintInfo.key {
		return TokenMintMismatch
	}
	if err := checkAuthority(authority, from.Owner); err != nil {
		return err
	}
	if from.Amount < amount {
		return TokenInsufficientFunds
	}
	if mint.Supply < amount {
		return TokenOverflow
	}

	from.Amount -= amount
	mint.Supply -= amount
	srcAcct.Data = from.Marshal()
	mintAcct.Data = mint.Marshal()
	if err := inv.write(token.ProgramKey, src, srcAcct); err != nil {
		return err
	}
	return inv.write(token.ProgramKey, mintInfo, mintAcct)
}
