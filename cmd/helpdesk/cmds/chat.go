package cmds

import (
	"context"
	"os"

	"github.com/go-go-golems/helpdesk/pkg/chatrunner"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the helpdesk assistant",
		Long: `Open a chat session with the helpdesk assistant.

A full-screen view is used when stdin and stdout are terminals, a plain
line-by-line prompt otherwise (or with --plain).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, _ := cmd.Flags().GetBool("plain")
			return RunChat(cmd.Context(), plain)
		},
	}
	AddChatFlags(cmd)
	return cmd
}

func AddChatFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("plain", false, "Use the line-by-line prompt instead of the full-screen view")
}

// RunChat runs an interactive session until the user quits.
func RunChat(ctx context.Context, plain bool) error {
	mode := chatrunner.RunModeChat
	if plain || !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		mode = chatrunner.RunModeLine
	}

	app, err := LoadApp(mode == chatrunner.RunModeChat)
	if err != nil {
		return err
	}
	defer app.Close()

	b, cleanup, err := app.NewChatBuilder(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cs, err := b.WithMode(mode).Build()
	if err != nil {
		return err
	}
	return cs.Run()
}
