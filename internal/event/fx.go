package event

import (
	"github.com/profitlens/profitlens/internal/event/liveevents"
	"github.com/profitlens/profitlens/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(liveevents.NewHub),
	fx.Provide(service.New),
)
