package app

import (
	"context"

	"github.com/google/wire"

	"danoo/internal/config"
)

var providerSet = wire.NewSet(
	provideAppBuilder,
	wire.Bind(new(appBuilderDeps), new(*AppBuilder)),
	provideAppFromBuilder,
)

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(ctx context.Context, b appBuilderDeps) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}
