package app

import (
	"context"
	"time"

	"github.com/rubydx/sorbet-mux/src/mux/gateway"
	"github.com/rubydx/sorbet-mux/src/mux/handler"
	"github.com/rubydx/sorbet-mux/src/mux/internal/core"
	"github.com/rubydx/sorbet-mux/src/mux/internal/fs"
	"github.com/rubydx/sorbet-mux/src/mux/internal/jsonrpcfx"
	"github.com/rubydx/sorbet-mux/src/mux/internal/launcher"
	"github.com/rubydx/sorbet-mux/src/mux/internal/serverinfofile"
	workspaceutils "github.com/rubydx/sorbet-mux/src/mux/internal/workspace-utils"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/fx"
)

// Module defines the mux-daemon application module.
var Module = fx.Options(
	gateway.Module, // outbounds
	handler.Module, // inbounds
	jsonrpcfx.Module,
	fs.Module,
	launcher.Module,
	serverinfofile.Module,
	workspaceutils.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "sorbet-mux",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        "local",
			RuntimeEnvironment: "local",
		}
	}),
)
