// Package project locates and loads a lineage project: the lineage.yaml
// config, the declarative schema fragments, and the migrations and fixups
// directories derived from it.
package project

import (
	_ "embed"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing/fstest"

	"github.com/lineagedb/lineage/pkg/consts"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	//go:embed embed/default.esdl
	defaultSchema []byte

	//go:embed embed/lineage.yaml
	defaultConfig []byte

	// image is the skeleton laid down by Initialize.
	image = fstest.MapFS{
		"dbschema":              {Mode: os.ModeDir | 0o755},
		"dbschema/migrations":   {Mode: os.ModeDir | 0o755},
		"dbschema/fixups":       {Mode: os.ModeDir | 0o755},
		"dbschema/default.esdl": {Data: defaultSchema},
		"lineage.yaml":          {Data: defaultConfig},
	}
)

type (
	// Config is the parsed lineage.yaml.
	Config struct {
		// SchemaDir is the directory holding *.esdl fragments plus the
		// migrations/ and fixups/ subdirectories, relative to the
		// project root. Defaults to "dbschema".
		SchemaDir string `yaml:"schema_dir,omitempty"`

		Engine EngineConfig `yaml:"engine,omitempty"`
	}

	// EngineConfig holds the default engine endpoint for this project.
	// Command-line flags override both fields.
	EngineConfig struct {
		URL      string `yaml:"url,omitempty"`
		Database string `yaml:"database,omitempty"`
	}

	// Project is a loaded project rooted at the directory containing
	// lineage.yaml.
	Project struct {
		root string
		cfg  Config
	}
)

const (
	defaultSchemaDir = "dbschema"
	defaultEngineURL = "http://localhost:5656"
	defaultDatabase  = "main"
)

// Load reads the project at dir. The directory must contain lineage.yaml.
func Load(dir string) (*Project, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve project directory %s", dir)
	}

	data, err := os.ReadFile(filepath.Join(root, consts.ConfigFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Errorf("no %s found in %s; not a lineage project", consts.ConfigFile, root)
		}
		return nil, errors.Wrapf(err, "failed to read %s", consts.ConfigFile)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", consts.ConfigFile)
	}

	if cfg.SchemaDir == "" {
		cfg.SchemaDir = defaultSchemaDir
	}
	if filepath.IsAbs(cfg.SchemaDir) {
		return nil, errors.Errorf("schema_dir must be relative to the project root, got %q", cfg.SchemaDir)
	}

	return &Project{root: root, cfg: cfg}, nil
}

// Initialize lays down the project skeleton in dir and returns the loaded
// project. It is idempotent: existing files and directories are preserved.
func Initialize(dir string) (*Project, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat dir: %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}

	for path, entry := range image {
		fullPath := filepath.Join(dir, path)

		if _, err := os.Stat(fullPath); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to stat %s", fullPath)
		}

		if entry.Mode.IsDir() {
			if err := os.MkdirAll(fullPath, entry.Mode.Perm()); err != nil {
				return nil, errors.Wrapf(err, "failed to create directory %s", fullPath)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fullPath), consts.ModeDir); err != nil {
			return nil, errors.Wrapf(err, "failed to create parent directory for %s", fullPath)
		}
		if err := os.WriteFile(fullPath, entry.Data, consts.ModeFile); err != nil {
			return nil, errors.Wrapf(err, "failed to write file %s", fullPath)
		}
	}

	return Load(dir)
}

// Root returns the project root directory.
func (p *Project) Root() string { return p.root }

// SchemaDir returns the absolute schema directory.
func (p *Project) SchemaDir() string { return filepath.Join(p.root, p.cfg.SchemaDir) }

// MigrationsDir returns the absolute migrations directory.
func (p *Project) MigrationsDir() string { return filepath.Join(p.SchemaDir(), consts.MigrationsDir) }

// FixupsDir returns the absolute fixups directory.
func (p *Project) FixupsDir() string { return filepath.Join(p.SchemaDir(), consts.FixupsDir) }

// EngineURL returns the configured engine endpoint, or the conventional
// local default.
func (p *Project) EngineURL() string {
	if p.cfg.Engine.URL != "" {
		return p.cfg.Engine.URL
	}

	return defaultEngineURL
}

// Database returns the configured engine database.
func (p *Project) Database() string {
	if p.cfg.Engine.Database != "" {
		return p.cfg.Engine.Database
	}

	return defaultDatabase
}

// EnsureDirs creates the migrations and fixups directories if missing.
func (p *Project) EnsureDirs() error {
	for _, dir := range []string{p.MigrationsDir(), p.FixupsDir()} {
		if err := os.MkdirAll(dir, consts.ModeDir); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	return nil
}

// SchemaText gathers every *.esdl fragment in the schema directory, sorted
// by name with hidden files skipped, into the schema body sent to the
// engine with START MIGRATION TO.
func (p *Project) SchemaText() (string, error) {
	entries, err := os.ReadDir(p.SchemaDir())
	if err != nil {
		return "", errors.Wrapf(err, "failed to read schema directory %s", p.SchemaDir())
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, consts.SchemaExt) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return "", errors.Errorf("no %s files found in %s", consts.SchemaExt, p.SchemaDir())
	}

	var sb strings.Builder
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(p.SchemaDir(), name))
		if err != nil {
			return "", errors.Wrapf(err, "failed to read schema file %s", name)
		}

		sb.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			sb.WriteByte('\n')
		}
	}

	return sb.String(), nil
}
