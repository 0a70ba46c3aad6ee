package cmds

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/persistence/chatstore"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/go-go-golems/helpdesk/pkg/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type transcriptCommand struct {
	output string
}

// NewTranscriptCommand groups the read-only journal inspection commands.
func NewTranscriptCommand() *cobra.Command {
	c := &transcriptCommand{}
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect journaled chat sessions",
		Long:  "Read-only tools for the transcript journal written with --transcript-db.",
	}
	cmd.PersistentFlags().StringVarP(&c.output, "output", "o", "text", "Output format (text, yaml)")
	cmd.AddCommand(c.newListCommand())
	cmd.AddCommand(c.newShowCommand())
	return cmd
}

func (c *transcriptCommand) openStore() (*App, *chatstore.SQLiteTranscriptStore, error) {
	switch c.output {
	case "text", "yaml":
	default:
		return nil, nil, errors.Errorf("unknown output format %q (expected text or yaml)", c.output)
	}
	app, err := LoadApp(false)
	if err != nil {
		return nil, nil, err
	}
	if app.Settings.TranscriptDB == "" {
		_ = app.Close()
		return nil, nil, errors.New("--transcript-db is required")
	}
	store, err := openTranscriptStore(app.Settings.TranscriptDB)
	if err != nil {
		_ = app.Close()
		return nil, nil, err
	}
	return app, store, nil
}

func (c *transcriptCommand) newListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, store, err := c.openStore()
			if err != nil {
				return err
			}
			defer app.Close()
			defer store.Close()

			sessions, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if c.output == "yaml" {
				return writeYAML(cmd.OutOrStdout(), sessions)
			}
			return writeSessions(cmd.OutOrStdout(), sessions)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	return cmd
}

func (c *transcriptCommand) newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the messages of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, store, err := c.openStore()
			if err != nil {
				return err
			}
			defer app.Close()
			defer store.Close()

			rec, ok, err := store.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.Errorf("session %s not found", args[0])
			}
			msgs, err := store.ListMessages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.output == "yaml" {
				return writeYAML(cmd.OutOrStdout(), transcriptDocument{Session: rec, Messages: msgs})
			}
			return writeTranscript(cmd.OutOrStdout(), rec, msgs)
		},
	}
}

type transcriptDocument struct {
	Session  chatstore.SessionRecord `yaml:"session"`
	Messages []session.Message       `yaml:"messages"`
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode yaml")
	}
	return enc.Close()
}

func formatMs(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func writeSessions(w io.Writer, sessions []chatstore.SessionRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tLAST ACTIVITY\tMESSAGES\tCONNECTIVITY\tLAST ERROR")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.SessionID, formatMs(s.StartedAtMs), formatMs(s.LastActivityMs),
			s.MessageCount, s.Connectivity, s.LastError)
	}
	return tw.Flush()
}

func writeTranscript(w io.Writer, rec chatstore.SessionRecord, msgs []session.Message) error {
	fmt.Fprintf(w, "Session %s (%s)\n", rec.SessionID, rec.BaseURL)
	fmt.Fprintf(w, "Started %s, last activity %s\n\n", formatMs(rec.StartedAtMs), formatMs(rec.LastActivityMs))
	for _, m := range msgs {
		label := "Assistant"
		if m.Role == session.RoleUser {
			label = "You"
		}
		fmt.Fprintf(w, "%s: %s\n", label, m.Content)
		if line := ui.FormatContext(m.ContextSnippet); line != "" {
			fmt.Fprintf(w, "  %s\n", line)
		}
		if _, err := fmt.Fprintf(w, "  %s\n\n", ui.FormatFooter(m)); err != nil {
			return err
		}
	}
	return nil
}
