package estimator

import "go.uber.org/fx"

var Module = fx.Module("estimator",
	fx.Provide(NewService),
)
