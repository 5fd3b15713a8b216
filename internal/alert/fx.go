package alert

import (
	"github.com/profitlens/profitlens/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(service.NewLogNotifier),
	fx.Provide(service.New),
)
