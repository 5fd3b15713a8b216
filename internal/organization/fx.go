package organization

import (
	"github.com/profitlens/profitlens/internal/organization/domain"
	"github.com/profitlens/profitlens/internal/organization/service"
	"github.com/profitlens/profitlens/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.ProvideStore[domain.Organization]),
	fx.Provide(service.New),
)
