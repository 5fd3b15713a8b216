package pricing

import (
	"github.com/profitlens/profitlens/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(service.NewCatalogClient),
	fx.Provide(service.New),
)
