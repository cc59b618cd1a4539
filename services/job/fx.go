package job

import (
	"go.uber.org/fx"
)

var Module = fx.Module("job.service",
	fx.Provide(
		NewService,
	),
)

// Worker runs the submission queue handlers and the periodic updater.
var Worker = fx.Module("job.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(RegisterHandlers, StartScheduler),
)
