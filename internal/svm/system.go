package svm

import (
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana/system"
)

// MaxAccountDataSize is the largest account the system program creates.
const MaxAccountDataSize = 10 * 1024 * 1024

// system executes the built-in system program.
func (inv *invocation) system(infos []accountInfo, data []byte) error {
	cmd, err := system.DecodeCommand(data)
	if err != nil {
		return onchain.ErrInvalidInstructionData
	}
	switch cmd {
	case system.CommandCreateAccount:
		return inv.createAccount(infos, data)
	case system.CommandTransfer:
		return inv.transferLamports(infos, data)
	}
	return onchain.ErrInvalidInstructionData
}

func (inv *invocation) createAccount(infos []accountInfo, data []byte) error {
	if len(infos) < 2 {
		return onchain.ErrNotEnoughAccountKeys
	}
	args, err := system.DecodeCreateAccount(data)
	if err != nil {
		return onchain.ErrInvalidInstructionData
	}
	funder, target := infos[0], infos[1]
	if !funder.signer || !target.signer {
		return onchain.ErrMissingRequiredSignature
	}

	l := inv.rt.ledger
	from := l.account(funder.key).Clone()
	to := l.account(target.key).Clone()
	if to.Lamports > 0 || len(to.Data) > 0 || to.Owner != system.ProgramKey {
		return SystemAccountAlreadyInUse
	}
	if args.Size > MaxAccountDataSize {
		return SystemInvalidSpace
	}
	if from.Lamports < args.Lamports {
		return SystemResultWithNegative
	}
	if args.Lamports < system.MinimumBalance(args.Size) {
		return ErrInsufficientFundsForRent
	}

	from.Lamports -= args.Lamports
	to.Lamports = args.Lamports
	to.Data = make([]byte, args.Size)
	to.Owner = args.Owner
	if err := inv.write(system.ProgramKey, funder, from); err != nil {
		return err
	}
	return inv.write(system.ProgramKey, target, to)
}

func (inv *invocation) transferLamports(infos []accountInfo, data []byte) error {
	if len(infos) < 2 {
		return onchain.ErrNotEnoughAccountKeys
	}
	amount, err := system.DecodeTransfer(data)
	if err != nil {
		return onchain.ErrInvalidInstructionData
	}
	src, dst := infos[0], infos[1]
	if !src.signer {
		return onchain.ErrMissingRequiredSignature
	}

	l := inv.rt.ledger
	from := l.account(src.key).Clone()
	if len(from.Data) > 0 {
		return onchain.ErrInvalidArgument
	}
	if from.Lamports < amount {
		return SystemResultWithNegative
	}
	from.Lamports -= amount
	if err := inv.write(system.ProgramKey, src, from); err != nil {
		return err
	}
	to := l.account(dst.key).Clone()
	to.Lamports += amount
	return inv.write(system.ProgramKey, dst, to)
}
