package migrations

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lineagedb/lineage/pkg/consts"
	"github.com/pkg/errors"
)

// Render produces the stored form of a migration:
//
//	CREATE MIGRATION <id> ONTO <parent>
//	{
//	  set message := '...';
//	  <statement>;
//	};
//
// Statements are normalized (trailing whitespace and semicolons stripped) and
// indented by two spaces. The rendered text parses back into an equivalent
// Migration with the same id.
func Render(id, parent, message string, statements []string) string {
	var sb strings.Builder
	sb.WriteString("CREATE MIGRATION ")
	sb.WriteString(id)
	sb.WriteString(" ONTO ")
	sb.WriteString(parent)
	sb.WriteString("\n{\n")

	if message != "" {
		sb.WriteString("  set message := ")
		sb.WriteString(quote(message))
		sb.WriteString(";\n")
	}

	for _, stmt := range statements {
		lines := strings.Split(NormalizeStatement(stmt), "\n")
		for i, line := range lines {
			sb.WriteString("  ")
			sb.WriteString(strings.TrimRight(line, " \t"))
			if i == len(lines)-1 {
				sb.WriteString(";")
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("};\n")
	return sb.String()
}

// NormalizeStatement strips trailing whitespace and statement terminators so
// that statements coming back from the engine (which may or may not carry a
// trailing semicolon) are stored and hashed uniformly.
func NormalizeStatement(stmt string) string {
	return strings.TrimRight(strings.TrimSpace(stmt), " \t\n;")
}

// Write renders a migration and writes it into dir under its canonical
// sequence name, returning the file name. The write goes through a temporary
// file in the same directory followed by a rename, so a crash never leaves a
// half-written migration under a chain name.
func Write(dir string, sequence int, id, parent, message string, statements []string) (string, error) {
	name := Filename(sequence, id)
	if err := writeFile(dir, name, Render(id, parent, message, statements)); err != nil {
		return "", err
	}

	return name, nil
}

// WriteRaw writes pre-rendered migration text into dir under name, with the
// same temp-file + rename discipline as Write.
func WriteRaw(dir, name, text string) error {
	return writeFile(dir, name, text)
}

func writeFile(dir, name, text string) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*"+consts.MigrationExt)
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file in %s", dir)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to write %s", name)
	}
	if err := os.Chmod(tmpName, consts.ModeFile); err != nil {
		return errors.Wrapf(err, "failed to set permissions on %s", name)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return errors.Wrapf(err, "failed to move %s into place", name)
	}

	return nil
}

// quote renders text as a single-quoted EdgeQL string literal.
func quote(text string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '\'', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')

	return sb.String()
}
