package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/solforge/internal/ir"
)

// ErrBuildNotFound is returned when no build has the requested ID.
var ErrBuildNotFound = errors.New("build not found")

// Published returns the discriminator every instruction of program was
// first published with.
//
// Returns an empty map (not nil) if the program has no builds.
func (s *Store) Published(ctx context.Context, program string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.name, p.discriminator
		FROM published_instructions p
		JOIN builds b ON b.id = p.build_id
		WHERE p.program = ?
		ORDER BY b.seq ASC, p.discriminator ASC
	`, program)
	if err != nil {
		return nil, fmt.Errorf("query published: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var name string
		var d int
		if err := rows.Scan(&name, &d); err != nil {
			return nil, fmt.Errorf("scan published: %w", err)
		}
		if _, seen := out[name]; !seen {
			out[name] = d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate published: %w", err)
	}
	return out, nil
}

// Builds returns the history of program ordered by seq.
//
// Returns an empty slice (not nil) if the program has no builds.
func (s *Store) Builds(ctx context.Context, program string) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program, seq, ir_hash, ir_version, document
		FROM builds
		WHERE program = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, program)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	builds := []Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}

	for i := range builds {
		ixs, err := s.instructions(ctx, builds[i].ID)
		if err != nil {
			return nil, err
		}
		builds[i].Instructions = ixs
	}
	return builds, nil
}

// Build returns a single build by ID.
func (s *Store) Build(ctx context.Context, id string) (Build, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, program, seq, ir_hash, ir_version, document
		FROM builds
		WHERE id = ?
	`, id)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, fmt.Errorf("%w: %s", ErrBuildNotFound, id)
	}
	if err != nil {
		return Build{}, err
	}
	b.Instructions, err = s.instructions(ctx, id)
	if err != nil {
		return Build{}, err
	}
	return b, nil
}

// Latest returns the most recent build of program. ok is false when the
// program has never been recorded.
func (s *Store) Latest(ctx context.Context, program string) (b Build, ok bool, err error) {
	var id string
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM builds WHERE program = ?
		ORDER BY seq DESC LIMIT 1
	`, program).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, false, nil
	}
	if err != nil {
		return Build{}, false, fmt.Errorf("query latest build: %w", err)
	}
	b, err = s.Build(ctx, id)
	if err != nil {
		return Build{}, false, err
	}
	return b, true, nil
}

// LoadDocument parses the IR document recorded with a build.
func (b Build) LoadDocument() (*ir.Document, error) {
	return ir.UnmarshalDocument(b.Document)
}

func (s *Store) instructions(ctx context.Context, buildID string) ([]PublishedInstruction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, discriminator, instruction_hash
		FROM published_instructions
		WHERE build_id = ?
		ORDER BY discriminator ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query instructions: %w", err)
	}
	defer rows.Close()

	out := []PublishedInstruction{}
	for rows.Next() {
		var ix PublishedInstruction
		if err := rows.Scan(&ix.Name, &ix.Discriminator, &ix.Hash); err != nil {
			return nil, fmt.Errorf("scan instruction: %w", err)
		}
		out = append(out, ix)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instructions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (Build, error) {
	var b Build
	var doc string
	if err := row.Scan(&b.ID, &b.Program, &b.Seq, &b.IRHash, &b.IRVersion, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Build{}, err
		}
		return Build{}, fmt.Errorf("scan build: %w", err)
	}
	b.Document = []byte(doc)
	return b, nil
}
