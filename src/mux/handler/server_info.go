package handler

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rubydx/sorbet-mux/src/mux/internal/serverinfofile"
	"github.com/rubydx/sorbet-mux/src/mux/internal/version"
)

const (
	_keyPID     = "pid"
	_keyVersion = "version"
)

// Output process identification from the running daemon.
// Connection methods (e.g. JSON-RPC) that bind their own inbounds independently add their fields to the Server Info file.
func outputProcessInfo(infofile serverinfofile.ServerInfoFile) error {
	if err := infofile.UpdateField(_keyPID, strconv.Itoa(os.Getpid())); err != nil {
		return fmt.Errorf("outputting pid to info file: %w", err)
	}

	if err := infofile.UpdateField(_keyVersion, version.Version); err != nil {
		return fmt.Errorf("outputting version to info file: %w", err)
	}

	return nil
}
