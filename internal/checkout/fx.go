package checkout

import (
	"github.com/smallbiznis/fiskal/internal/checkout/repository"
	"github.com/smallbiznis/fiskal/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
