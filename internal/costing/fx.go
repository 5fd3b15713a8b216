package costing

import (
	"github.com/profitlens/profitlens/internal/costing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("costing.service",
	fx.Provide(service.New),
)
