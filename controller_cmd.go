package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liftctl/dispatcher"
)

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Run the dispatch controller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return dispatcher.New(cfg.ListenAddr(), cfg.WriteTimeout).ListenAndServe(ctx)
	},
}
