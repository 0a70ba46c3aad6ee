package cmds

import (
	"strings"

	"github.com/go-go-golems/helpdesk/pkg/chatrunner"
	"github.com/spf13/cobra"
)

func NewAskCommand() *cobra.Command {
	var continueInChat bool
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a single question and print the answer",
		Long: `Ask a single question and print the answer, its processing time and the
context the service used. Exits non-zero when the question could not be answered.

With --continue the session can be carried on in the chat view afterwards.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			b, cleanup, err := app.NewChatBuilder(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			mode := chatrunner.RunModeBlocking
			if continueInChat {
				mode = chatrunner.RunModeInteractive
			}
			cs, err := b.
				WithMode(mode).
				WithQuery(strings.Join(args, " ")).
				WithOutputWriter(cmd.OutOrStdout()).
				WithBeforeChat(app.QuietLogging).
				Build()
			if err != nil {
				return err
			}
			return cs.Run()
		},
	}
	cmd.Flags().BoolVar(&continueInChat, "continue", false, "Offer to continue in the chat view after the answer")
	return cmd
}
