package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
)

// Build is one recorded compile of a program.
type Build struct {
	ID           string
	Program      string
	Seq          int64
	IRHash       string
	IRVersion    string
	Document     []byte
	Instructions []PublishedInstruction
}

// PublishedInstruction is the contract a build published for one
// instruction.
type PublishedInstruction struct {
	Name          string
	Discriminator int
	Hash          string
}

// NewBuild snapshots doc. ID and Seq are assigned by RecordBuild.
func NewBuild(doc *ir.Document) (Build, error) {
	hash, err := ir.DocumentHash(doc)
	if err != nil {
		return Build{}, fmt.Errorf("new build: %w", err)
	}
	raw, err := ir.MarshalDocument(doc)
	if err != nil {
		return Build{}, fmt.Errorf("new build: %w", err)
	}
	b := Build{
		Program:      doc.Name,
		IRHash:       hash,
		IRVersion:    doc.IRVersion,
		Document:     raw,
		Instructions: make([]PublishedInstruction, len(doc.Instructions)),
	}
	for i := range doc.Instructions {
		ix := &doc.Instructions[i]
		h, err := ir.InstructionHash(ix)
		if err != nil {
			return Build{}, fmt.Errorf("new build: %w", err)
		}
		b.Instructions[i] = PublishedInstruction{Name: ix.Name, Discriminator: ix.Discriminator, Hash: h}
	}
	return b, nil
}

// RecordBuild appends b to the program's history and returns it with its
// ID and seq assigned. A build with an existing ID is left untouched.
func (s *Store) RecordBuild(ctx context.Context, b Build) (Build, error) {
	if b.ID == "" {
		b.ID = s.ids.Generate()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Build{}, fmt.Errorf("record build: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM builds WHERE program = ?
	`, b.Program).Scan(&b.Seq); err != nil {
		return Build{}, fmt.Errorf("record build: next seq: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO builds (id, program, seq, ir_hash, ir_version, document)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, b.ID, b.Program, b.Seq, b.IRHash, b.IRVersion, string(b.Document))
	if err != nil {
		return Build{}, fmt.Errorf("record build: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Build{}, fmt.Errorf("record build: %w", err)
	}
	if n == 0 {
		// Release the single connection before reading the existing row.
		tx.Rollback()
		return s.Build(ctx, b.ID)
	}

	for _, ix := range b.Instructions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO published_instructions
			(build_id, program, name, discriminator, instruction_hash)
			VALUES (?, ?, ?, ?, ?)
		`, b.ID, b.Program, ix.Name, ix.Discriminator, ix.Hash); err != nil {
			return Build{}, fmt.Errorf("record build: instruction %s: %w", ix.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Build{}, fmt.Errorf("record build: commit: %w", err)
	}

	log.WithFields(logrus.Fields{
		"program": b.Program,
		"seq":     b.Seq,
		"build":   b.ID,
	}).Debug("recorded build")
	return b, nil
}

// Lock checks doc against everything the program has published and
// records it when compatible. Incompatible documents are rejected with
// compiler.ValidationErrors and nothing is recorded.
func (s *Store) Lock(ctx context.Context, doc *ir.Document) (Build, error) {
	published, err := s.Published(ctx, doc.Name)
	if err != nil {
		return Build{}, err
	}
	if errs := compiler.CheckCompatibility(published, doc); len(errs) > 0 {
		return Build{}, compiler.ValidationErrors(errs)
	}
	b, err := NewBuild(doc)
	if err != nil {
		return Build{}, err
	}
	return s.RecordBuild(ctx, b)
}
