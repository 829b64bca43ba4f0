package controller

import (
	"github.com/rubydx/sorbet-mux/src/mux/controller/filewatch"
	muxdaemon "github.com/rubydx/sorbet-mux/src/mux/controller/mux-daemon"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(muxdaemon.New),
	fx.Provide(filewatch.New),
)
