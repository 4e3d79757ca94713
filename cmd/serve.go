package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/papersmith/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs as a read-only JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viperForCmd(cmd)

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		addr := v.GetString("addr")
		srv := &http.Server{
			Addr:              addr,
			Handler:           server.New(s.RunRepo(), s.HistoryRepo()).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx := cmd.Context()
		errCh := make(chan error, 1)
		go func() {
			slog.Info("starting server", "addr", addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringP("addr", "a", ":8080", "HTTP listen address")
}
