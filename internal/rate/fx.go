package rate

import (
	"github.com/profitlens/profitlens/internal/rate/repository"
	"github.com/profitlens/profitlens/internal/rate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.resolver",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewManager),
)
