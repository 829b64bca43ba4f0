package handler

import (
	controller "github.com/rubydx/sorbet-mux/src/mux/controller"
	muxdaemon "github.com/rubydx/sorbet-mux/src/mux/controller/mux-daemon"
	handler "github.com/rubydx/sorbet-mux/src/mux/handler/mux-daemon"
	"github.com/rubydx/sorbet-mux/src/mux/repository/session"
	"go.uber.org/fx"
)

// Module provides the mux-daemon server into an Fx application.
var Module = fx.Options(
	controller.Module,
	fx.Provide(session.New),
	fx.Provide(handler.New),
	fx.Invoke(outputProcessInfo),
	fx.Invoke(func(m handler.Handler) {}),
	fx.Invoke(func(m muxdaemon.Controller) {}),
)
