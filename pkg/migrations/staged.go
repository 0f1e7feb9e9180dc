package migrations

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// StagedExt is the suffix given to files staged for deletion.
const StagedExt = ".old"

// StagedSwap replaces a set of migration files in two stages so that a crash
// at any point leaves the directory recoverable by hand.
//
// Stage renames each doomed file to name+".old"; the caller then writes the
// replacement files. Commit deletes the staged files once every replacement
// is safely in place, and Rollback renames them back (overwriting any
// partially written replacements that reused an old name). After a crash
// between the stages the ".old" files are still on disk next to whatever was
// written, so nothing is lost.
//
// Example usage:
//
//	var swap migrations.StagedSwap
//	for _, path := range doomed {
//		if err := swap.Stage(path); err != nil {
//			return errors.Wrap(swap.Rollback(err), "failed to stage")
//		}
//	}
//	if err := writeReplacements(); err != nil {
//		return swap.Rollback(err)
//	}
//	return swap.Commit()
type StagedSwap struct {
	staged []string
}

// Stage moves path aside to path+".old".
func (s *StagedSwap) Stage(path string) error {
	if err := os.Rename(path, path+StagedExt); err != nil {
		return errors.Wrapf(err, "failed to stage %s", path)
	}

	s.staged = append(s.staged, path)
	return nil
}

// Commit deletes every staged file, finalizing the swap.
func (s *StagedSwap) Commit() error {
	for _, path := range s.staged {
		if err := os.Remove(path + StagedExt); err != nil {
			return errors.Wrapf(err, "failed to remove %s%s", path, StagedExt)
		}
	}

	s.staged = nil
	return nil
}

// Rollback restores every staged file to its original name and returns cause
// (annotated if the restore itself fails, which leaves ".old" files behind).
func (s *StagedSwap) Rollback(cause error) error {
	var failed []string
	for _, path := range s.staged {
		if err := os.Rename(path+StagedExt, path); err != nil {
			failed = append(failed, path+StagedExt)
		}
	}

	s.staged = nil
	if len(failed) > 0 {
		return errors.Wrapf(cause, "additionally, could not restore staged files: %s", strings.Join(failed, ", "))
	}

	return cause
}

// Staged reports how many files are currently staged.
func (s *StagedSwap) Staged() int {
	return len(s.staged)
}
