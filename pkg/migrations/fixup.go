package migrations

import (
	"io/fs"
	"strings"

	"github.com/lineagedb/lineage/pkg/consts"
	"github.com/pkg/errors"
)

// FixupFilename returns the file name for a fixup migrating an instance from
// revision fromID to revision toID, e.g. "m1abc...-m1def....edgeql".
func FixupFilename(fromID, toID string) string {
	return fromID + "-" + toID + consts.MigrationExt
}

// ParseFixupName splits a fixup file name into its from and to revision ids.
func ParseFixupName(name string) (fromID, toID string, ok bool) {
	base, found := strings.CutSuffix(name, consts.MigrationExt)
	if !found {
		return "", "", false
	}

	fromID, toID, found = strings.Cut(base, "-")
	if !found || !strings.HasPrefix(fromID, IDPrefix) || !strings.HasPrefix(toID, IDPrefix) {
		return "", "", false
	}

	return fromID, toID, true
}

// ReadFixups loads all fixup files in fsys. A missing directory is treated as
// no fixups. Fixups are not chained, so the result is unordered; each file's
// FixupTarget carries the destination revision from its name.
func ReadFixups(fsys fs.FS, validate bool) ([]*File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read fixups directory")
	}

	var fixups []*File
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, consts.MigrationExt) {
			continue
		}

		fromID, toID, ok := ParseFixupName(name)
		if !ok {
			return nil, errors.Errorf("fixup file %s should be named <from id>-<to id>%s", name, consts.MigrationExt)
		}

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read fixup file %s", name)
		}

		m, err := Parse(string(data))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse fixup file %s", name)
		}

		if m.Parent != fromID {
			return nil, errors.Errorf("fixup file %s must build on revision %q, not %q", name, fromID, m.Parent)
		}

		if validate {
			expected, err := m.ExpectedID()
			if err != nil {
				return nil, errors.Wrapf(err, "failed to hash fixup file %s", name)
			}
			if expected != m.ID {
				return nil, &IdentityMismatchError{Name: name, Recorded: m.ID, Expected: expected}
			}
		}

		fixups = append(fixups, &File{Name: name, FixupTarget: toID, Migration: *m})
	}

	return fixups, nil
}

// WriteFixup writes a fixup migration into dir under its <from>-<to> name.
func WriteFixup(dir, id, parent, toID, message string, statements []string) (string, error) {
	name := FixupFilename(parent, toID)
	if err := writeFile(dir, name, Render(id, parent, message, statements)); err != nil {
		return "", err
	}

	return name, nil
}

// ReachableFixups returns the fixup files that can still participate in some
// upgrade path ending at one of the retained revision ids. The walk follows
// fixup edges backwards: a fixup into a retained revision keeps its source
// revision alive, which can in turn keep an older fixup alive. Everything
// else is garbage left over from previous squashes.
func ReachableFixups(fixups []*File, retained map[string]struct{}) map[string]struct{} {
	alive := make(map[string]struct{}, len(retained))
	for id := range retained {
		alive[id] = struct{}{}
	}

	reachable := make(map[string]struct{})
	for {
		grew := false
		for _, f := range fixups {
			if _, done := reachable[f.Name]; done {
				continue
			}
			if _, ok := alive[f.FixupTarget]; !ok {
				continue
			}

			reachable[f.Name] = struct{}{}
			alive[f.Parent] = struct{}{}
			grew = true
		}

		if !grew {
			return reachable
		}
	}
}
