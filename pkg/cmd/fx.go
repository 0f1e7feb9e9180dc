package cmd

import "go.uber.org/fx"

var Module = fx.Module("cli",
	fx.Provide(
		fx.Annotate(initCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(migration, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)
