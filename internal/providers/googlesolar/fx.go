package googlesolar

import "go.uber.org/fx"

var Module = fx.Module("providers.googlesolar",
	fx.Provide(New),
)
