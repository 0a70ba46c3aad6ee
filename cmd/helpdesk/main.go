package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/helpdesk/cmd/helpdesk/cmds"
	"github.com/go-go-golems/helpdesk/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "helpdesk",
	Short: "helpdesk is a terminal chat client for the helpdesk assistant",
	Long: `helpdesk talks to a helpdesk answering service over HTTP.

Run without a subcommand to open a chat session.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, _ := cmd.Flags().GetBool("plain")
		return cmds.RunChat(cmd.Context(), plain)
	},
}

func initRootCmd() error {
	config.AddFlags(rootCmd)
	cmds.AddChatFlags(rootCmd)

	if err := config.InitViper("helpdesk", rootCmd); err != nil {
		return err
	}

	rootCmd.AddCommand(cmds.NewChatCommand())
	rootCmd.AddCommand(cmds.NewAskCommand())
	rootCmd.AddCommand(cmds.NewHealthCommand())
	rootCmd.AddCommand(cmds.NewTranscriptCommand())
	rootCmd.AddCommand(cmds.NewStubBackendCommand())
	return nil
}

func main() {
	err := initRootCmd()
	cobra.CheckErr(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
