//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"danoo/internal/config"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(providerSet)
	return nil, nil
}
