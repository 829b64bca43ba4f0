// Package gateway aggregates the daemon's outbound adapters.
package gateway

import (
	notifier "github.com/rubydx/sorbet-mux/src/mux/gateway/ide-client"
	sorbetclient "github.com/rubydx/sorbet-mux/src/mux/gateway/sorbet-client"
	"go.uber.org/fx"
)

// Module provides the outbound gateways into an Fx application.
var Module = fx.Options(
	fx.Provide(notifier.New),
	sorbetclient.Module,
)
