package mapper

import (
	"github.com/rubydx/sorbet-mux/src/mux/entity"
)

// Fixed arguments that put Sorbet into language server mode.
var _lspArgs = []string{"tc", "--lsp", "--enable-all-experimental-lsp-features"}

const _disableWatchmanFlag = "--disable-watchman"

// SorbetConfigToCommand maps resolved Sorbet settings to the argv used to
// start a session. The mapping is pure: equal configs produce equal argv,
// and nothing here touches the environment.
func SorbetConfigToCommand(cfg entity.SorbetConfig) []string {
	argv := make([]string, 0, 7)
	if cfg.UseBundler {
		argv = append(argv, cfg.BundlerPath, "exec", "srb")
	} else {
		argv = append(argv, cfg.CommandPath)
	}
	argv = append(argv, _lspArgs...)
	if !cfg.UseWatchman {
		argv = append(argv, _disableWatchmanFlag)
	}
	return argv
}
