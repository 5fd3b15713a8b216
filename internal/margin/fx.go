package margin

import (
	"github.com/profitlens/profitlens/internal/margin/service"
	"go.uber.org/fx"
)

var Module = fx.Module("margin.service",
	fx.Provide(service.New),
)
