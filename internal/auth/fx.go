package auth

import (
	"github.com/smallbiznis/stagepass/internal/auth/repository"
	authservice "github.com/smallbiznis/stagepass/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.Provide),
	fx.Provide(authservice.NewService),
)
