package event

import (
	"github.com/smallbiznis/stagepass/internal/cache"
	"github.com/smallbiznis/stagepass/internal/event/repository"
	eventservice "github.com/smallbiznis/stagepass/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewEventListingCache),
	fx.Provide(eventservice.NewService),
)
