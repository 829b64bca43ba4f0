package model

import (
	"github.com/gofrs/uuid"
	sorbetclient "github.com/rubydx/sorbet-mux/src/mux/gateway/sorbet-client"
	"github.com/rubydx/sorbet-mux/src/mux/internal/launcher"
)

// ServerSession is the repository layer model for a single Sorbet session.
type ServerSession struct {
	UUID              uuid.UUID
	Root              string
	State             int
	Proc              launcher.Handle
	Client            sorbetclient.Client
	DiagnosticLogPath string
	DebugPort         int
	StopWatch         func() error
}
