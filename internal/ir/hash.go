package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDocument    = "solforge/ir/v1"
	DomainInstruction = "solforge/instruction/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentHash computes the content hash of an IR document.
// Two documents hash equal iff their canonical JSON is identical.
func DocumentHash(doc *Document) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("DocumentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// InstructionHash computes the content hash of one instruction's interface:
// its name, discriminator, arguments and account slots. Ops are excluded so
// that handler changes do not count as interface changes.
func InstructionHash(ix *Instruction) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"name":          ix.Name,
		"discriminator": ix.Discriminator,
		"args":          ix.Args,
		"accounts":      ix.Accounts,
	})
	if err != nil {
		return "", fmt.Errorf("InstructionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInstruction, canonical), nil
}

// MustDocumentHash is like DocumentHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDocumentHash(doc *Document) string {
	h, err := DocumentHash(doc)
	if err != nil {
		panic(err)
	}
	return h
}
