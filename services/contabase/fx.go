package contabase

import "go.uber.org/fx"

var Module = fx.Module("contabase.service",
	fx.Provide(NewService),
)
