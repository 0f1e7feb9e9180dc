package migrations

import (
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/lineagedb/lineage/pkg/consts"
	"github.com/pkg/errors"
)

// ReadChain loads the migration files in fsys and orders them into a single
// linear chain rooted at the "initial" sentinel.
//
// Hidden files and files without the .edgeql extension are skipped. Every
// remaining file must parse, carry a 5-digit sequence number matching its
// position, and continue from the id of the previous file. When validate is
// true each file's recorded id is also checked against the recomputed content
// hash; readers that are about to rewrite ids (the rehash pass) disable this.
//
// The bare legacy naming form "00002.edgeql" (no id suffix) is accepted with
// a warning.
//
// Example usage:
//
//	chain, err := migrations.ReadChain(os.DirFS(dir), true)
//	if err != nil {
//		return err
//	}
//	tip := migrations.Tip(chain) // "initial" when the chain is empty
func ReadChain(fsys fs.FS, validate bool) ([]*File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read migrations directory")
	}

	byParent := make(map[string]*File)
	remaining := make(map[string]*File)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, consts.MigrationExt) {
			continue
		}

		f, err := readFile(fsys, name, validate)
		if err != nil {
			return nil, err
		}

		if prev, ok := byParent[f.Parent]; ok {
			return nil, &DivergentHistoryError{NameA: prev.Name, NameB: f.Name, Parent: f.Parent}
		}
		byParent[f.Parent] = f
		remaining[f.Name] = f
	}

	chain := make([]*File, 0, len(remaining))
	parent := consts.InitialRevision

	for len(remaining) > 0 {
		f, ok := byParent[parent]
		if !ok {
			return nil, &MissingLinkError{
				Sequence: len(chain) + 1,
				Parent:   parent,
				Hint:     lowestName(remaining),
			}
		}

		if f.Sequence != len(chain)+1 {
			return nil, &MisnamedFileError{Name: f.Name, Expected: Filename(len(chain)+1, f.ID)}
		}

		chain = append(chain, f)
		delete(remaining, f.Name)
		parent = f.ID
	}

	return chain, nil
}

// Tip returns the id of the last migration in the chain, or the "initial"
// sentinel for an empty chain.
func Tip(chain []*File) string {
	if len(chain) == 0 {
		return consts.InitialRevision
	}

	return chain[len(chain)-1].ID
}

// readFile parses a single migration file and, when validate is set, checks
// its recorded id against the recomputed content hash.
func readFile(fsys fs.FS, name string, validate bool) (*File, error) {
	seq, legacy, ok := SequenceFromName(name)
	if !ok {
		return nil, &MisnamedFileError{Name: name, Expected: "NNNNN-<id prefix>" + consts.MigrationExt}
	}
	if legacy {
		slog.Warn("migration file uses legacy naming", "file", name)
	}

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read migration file %s", name)
	}

	m, err := Parse(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse migration file %s", name)
	}

	if validate {
		expected, err := m.ExpectedID()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to hash migration file %s", name)
		}
		if expected != m.ID {
			return nil, &IdentityMismatchError{Name: name, Recorded: m.ID, Expected: expected}
		}
	}

	return &File{Name: name, Sequence: seq, Migration: *m}, nil
}

func lowestName(files map[string]*File) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	return names[0]
}
