package customer

import (
	"github.com/profitlens/profitlens/internal/customer/repository"
	"github.com/profitlens/profitlens/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
