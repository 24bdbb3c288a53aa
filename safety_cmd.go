package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liftctl/carstate"
	"liftctl/safety"
	"liftctl/statesync"
)

var safetyCmd = &cobra.Command{
	Use:   "safety <name>",
	Short: "Run the safety monitor of a car",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		seg, err := statesync.Attach(ctx, carstate.SegmentPath(cfg.SegmentDir, name))
		if err != nil {
			fmt.Printf("Unable to access car %s. Is the car program running?\n", name)
			return errExit
		}
		defer seg.Close()

		return safety.NewMonitor(name, seg).Run(ctx)
	},
}
