package payment

import (
	"github.com/smallbiznis/stagepass/internal/payment/adapters"
	"github.com/smallbiznis/stagepass/internal/payment/adapters/stripe"
	"github.com/smallbiznis/stagepass/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/payment/repository"
	"github.com/smallbiznis/stagepass/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(func(client *checkout.StripeClient) paymentdomain.CheckoutClient {
		return client
	}),
	fx.Provide(checkout.NewStripeClient),
	fx.Provide(webhook.NewService),
)
