package migrations

import "fmt"

type (
	// IdentityMismatchError reports a migration file whose recorded id no
	// longer matches the hash of its contents, i.e. the file was edited
	// after it was written.
	IdentityMismatchError struct {
		Name     string
		Recorded string
		Expected string
	}

	// DivergentHistoryError reports two migration files that claim the
	// same parent. The chain must stay linear; one branch has to be
	// rebased on top of the other.
	DivergentHistoryError struct {
		NameA  string
		NameB  string
		Parent string
	}

	// MisnamedFileError reports a file whose name does not match its
	// position in the chain.
	MisnamedFileError struct {
		Name     string
		Expected string
	}

	// MissingLinkError reports a gap in the chain: no file continues from
	// the given parent revision.
	MissingLinkError struct {
		Sequence int
		Parent   string
		Hint     string
	}
)

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf(
		"migration name should be `%s` but `%s` is used instead.\n"+
			"Migration names are computed from the hash of the migration "+
			"contents. To proceed you must fix the statement to read as:\n"+
			"  CREATE MIGRATION %s ONTO ...\n"+
			"if this migration is not applied to any database. Alternatively, "+
			"revert the changes to the file (%s)",
		e.Expected, e.Recorded, e.Expected, e.Name)
}

func (e *DivergentHistoryError) Error() string {
	return fmt.Sprintf(
		"migration files %s and %s both claim parent revision %q. "+
			"The migration history must be linear; please rebase one of the "+
			"branches on top of the other",
		e.NameA, e.NameB, e.Parent)
}

func (e *MisnamedFileError) Error() string {
	return fmt.Sprintf("file %s should be named %s", e.Name, e.Expected)
}

func (e *MissingLinkError) Error() string {
	msg := fmt.Sprintf(
		"could not find migration file %05d-*.edgeql with parent revision %q",
		e.Sequence, e.Parent)
	if e.Hint != "" {
		msg += fmt.Sprintf(" (perhaps %s should be fixed?)", e.Hint)
	}

	return msg
}
