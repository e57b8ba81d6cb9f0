package quota

import (
	"github.com/smallbiznis/rooflens/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.gate",
	fx.Provide(service.NewGate),
)
