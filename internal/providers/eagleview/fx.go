package eagleview

import "go.uber.org/fx"

var Module = fx.Module("providers.eagleview",
	fx.Provide(NewTokenProvider),
	fx.Provide(New),
)
