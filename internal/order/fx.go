package order

import (
	"github.com/smallbiznis/stagepass/internal/order/repository"
	orderservice "github.com/smallbiznis/stagepass/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(orderservice.NewService),
)
