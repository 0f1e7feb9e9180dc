package consts

import "os"

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// ConfigFile is the name of the project configuration file that marks a
	// directory as a lineage project
	ConfigFile = "lineage.yaml"

	// MigrationsDir is the name of the migrations subdirectory inside the
	// schema directory
	MigrationsDir = "migrations"

	// FixupsDir is the name of the fixups subdirectory inside the schema
	// directory
	FixupsDir = "fixups"

	// MigrationExt is the file extension for migration and fixup files
	MigrationExt = ".edgeql"

	// SchemaExt is the file extension for declarative schema fragments
	SchemaExt = ".esdl"

	// InitialRevision is the sentinel parent id of the first migration in a
	// chain
	InitialRevision = "initial"
)
