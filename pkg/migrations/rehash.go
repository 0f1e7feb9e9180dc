package migrations

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FixChainIDs walks the chain in dir from the root and repairs every id that
// no longer matches its content hash, rewriting files in place. When a
// migration's id changes, its child's ONTO clause is updated before the
// child's own id is recomputed, so a single edit near the root cascades down
// the whole chain. Files are renamed to their canonical sequence name when
// the id prefix (or a legacy bare-sequence name) no longer matches.
//
// The returned map records every old id to its replacement.
func FixChainIDs(dir string) (map[string]string, error) {
	chain, err := ReadChain(os.DirFS(dir), false)
	if err != nil {
		return nil, err
	}

	changed := make(map[string]string)

	for _, f := range chain {
		path := filepath.Join(dir, f.Name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", f.Name)
		}

		text := string(data)
		m := &f.Migration

		// The parent must be rewritten before recomputing the id, since
		// the parent participates in the hash.
		if newParent, ok := changed[m.Parent]; ok {
			text = replaceSpan(text, m.ParentSpan, newParent)

			// Id lengths differ between the sentinel and real ids, so
			// spans may have shifted.
			if m, err = Parse(text); err != nil {
				return nil, errors.Wrapf(err, "failed to re-parse %s", f.Name)
			}
		}

		expected, err := m.ExpectedID()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to hash %s", f.Name)
		}

		if expected != m.ID {
			text = replaceSpan(text, m.IDSpan, expected)
			changed[m.ID] = expected
		}

		name := Filename(f.Sequence, expected)
		if err := writeFile(dir, name, text); err != nil {
			return nil, err
		}
		if name != f.Name {
			if err := os.Remove(path); err != nil {
				return nil, errors.Wrapf(err, "failed to remove %s", f.Name)
			}
		}

		f.Name = name
		f.Migration.ID = expected
	}

	return changed, nil
}

func replaceSpan(text string, span Span, replacement string) string {
	return text[:span.Start] + replacement + text[span.End:]
}
