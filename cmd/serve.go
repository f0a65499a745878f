package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theohmwoa/mirage-mcp-tool/pkg/httpapi"
	"github.com/theohmwoa/mirage-mcp-tool/pkg/serverstore"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	Long: `Serve runs the HTTP API over the configured servers. Sessions are
established lazily on first use and reused across requests. The
configuration file is watched; editing it invalidates the sessions of the
servers whose entries changed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		invoker, registry, store, err := openInvoker()
		if err != nil {
			return err
		}
		defer registry.CloseAll()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go func() {
			err := serverstore.Watch(ctx, store, logger, func(names []string) {
				for _, name := range names {
					registry.Invalidate(name)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("config watch stopped", "error", err)
			}
		}()

		api := httpapi.New(invoker, registry, store, &httpapi.Options{
			Addr:   serveAddr,
			Logger: logger,
		})
		logger.Info("listening", "addr", serveAddr, "config", store.Path())
		if err := api.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8700", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
