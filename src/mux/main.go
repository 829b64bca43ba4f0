package main

import (
	"fmt"
	"os"

	"github.com/rubydx/sorbet-mux/src/mux/app"
	"github.com/rubydx/sorbet-mux/src/mux/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func opts() fx.Option {
	return fx.Options(
		app.Module,
	)
}

var rootCmd = &cobra.Command{
	Use:   "sorbet-mux",
	Short: "Multiplexes editor LSP connections onto shared Sorbet sessions",
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon and accept editor connections",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	fx.New(opts()).Run()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
