package cmds

import (
	"context"
	"net/http"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/stub"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewStubBackendCommand() *cobra.Command {
	var (
		addr    string
		faqPath string
	)
	cmd := &cobra.Command{
		Use:   "stub-backend",
		Short: "Serve a canned-answer helpdesk service for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := LoadApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			faq := stub.DefaultFAQ()
			if faqPath != "" {
				faq, err = stub.LoadFAQ(faqPath)
				if err != nil {
					return err
				}
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           stub.NewServer(faq, log.Logger).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return serveUntilDone(cmd.Context(), srv, len(faq.Entries))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	cmd.Flags().StringVar(&faqPath, "faq", "", "YAML file with FAQ entries (built-in entries when empty)")
	return cmd
}

func serveUntilDone(ctx context.Context, srv *http.Server, entries int) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Int("faq_entries", entries).Msg("stub backend listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "stub backend failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("stub backend shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
