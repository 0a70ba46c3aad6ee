package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the helpdesk service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			client, err := app.Settings.NewClient()
			if err != nil {
				return err
			}
			if err := client.Health(cmd.Context()); err != nil {
				log.Debug().Err(err).Str("base_url", client.BaseURL()).Msg("health probe failed")
				fmt.Fprintln(cmd.OutOrStdout(), "offline")
				return errors.Errorf("helpdesk service at %s is offline", client.BaseURL())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "online")
			return nil
		},
	}
}
