// Command razy is the reference front end for the razy engine: an HTTP
// server funnelling every request through the multi-domain dispatch tree,
// plus a CLI script runner. Deployments embedding their own module
// controllers register them in the controllers registry before Execute
// runs (typically from an init function in a fork of this package).
package main

import (
	"fmt"
	"os"

	"github.com/razy-go/razy"
	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagRoot   string

	// controllers is the registry handed to every distributor. Embedders
	// register their module controllers here.
	controllers = make(razy.ControllerRegistry)
)

func main() {
	root := &cobra.Command{
		Use:           "razy",
		Short:         "Multi-tenant module engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "app.toml", "application config file")
	root.PersistentFlags().StringVarP(&flagRoot, "root", "r", ".", "application root directory")

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newAssetsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "razy:", err)
		os.Exit(1)
	}
}

func loadAppConfig() (*razy.AppConfig, error) {
	return razy.LoadAppConfig(flagConfig)
}
