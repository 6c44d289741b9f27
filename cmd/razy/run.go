package main

import (
	"fmt"

	"github.com/razy-go/razy"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var mountPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "run <host> <command> [args...]",
		Short: "Run a registered script of a distributor",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)
			config, err := loadAppConfig()
			if err != nil {
				return err
			}

			app := razy.NewApplication(flagRoot, config, args[0],
				razy.WithAppLogger(logger),
				razy.WithRegistry(controllers),
				razy.WithPlugins(razy.NewPluginManager()),
			)

			matched, err := app.RunScript(cmd.Context(), mountPath, args[1], args[2:])
			if err != nil {
				return err
			}
			if !matched {
				return fmt.Errorf("no registered script matches %q", args[1])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mountPath, "path", "p", "/", "mount path selecting the distributor")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug logging")
	return cmd
}
