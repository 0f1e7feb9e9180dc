package cmd

import (
	"github.com/lineagedb/lineage/pkg/engine"
	"github.com/lineagedb/lineage/pkg/project"
	"github.com/urfave/cli/v3"
)

// engineFlags are shared by every command that talks to an engine. Empty
// values fall back to the project's lineage.yaml, then to the conventional
// local defaults.
func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Aliases: []string{"u"},
			Usage:   "Engine base URL (e.g. http://localhost:5656)",
			Sources: cli.EnvVars("LINEAGE_URL"),
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringFlag{
			Name:    "database",
			Usage:   "Database (branch) to operate on",
			Sources: cli.EnvVars("LINEAGE_DATABASE"),
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringFlag{
			Name:  "cafile",
			Usage: "Certificate authority pem",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringFlag{
			Name:  "certfile",
			Usage: "Certificate public key file",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringFlag{
			Name:  "keyfile",
			Usage: "Certificate private key file",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
	}
}

// dial connects to the engine selected by the command's flags, falling back
// to the project configuration.
func dial(cmd *cli.Command, proj *project.Project) (*engine.Client, error) {
	url := cmd.String("url")
	if url == "" {
		url = proj.EngineURL()
	}

	database := cmd.String("database")
	if database == "" {
		database = proj.Database()
	}

	return engine.NewClient(url, engine.ClientOptions{
		Database: database,
		CAFile:   cmd.String("cafile"),
		CertFile: cmd.String("certfile"),
		KeyFile:  cmd.String("keyfile"),
	})
}
