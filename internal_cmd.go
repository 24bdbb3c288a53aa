package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"liftctl/carstate"
	"liftctl/manual"
	"liftctl/statesync"
)

var internalCmd = &cobra.Command{
	Use:   "internal <name> <operation>",
	Short: "Operate a car by hand",
	Long: `Operate a car by hand. Operations: open, close, stop, service_on,
service_off, up, down. up and down move the car one floor and are only
accepted in individual service mode with the doors closed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		op, err := manual.ParseOperation(args[1])
		if err != nil {
			fmt.Println("Invalid operation.")
			return errExit
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.LockTimeout)
		defer cancel()
		seg, err := statesync.Attach(ctx, carstate.SegmentPath(cfg.SegmentDir, name))
		if err != nil {
			fmt.Printf("Unable to access car %s. Is the car program running?\n", name)
			return errExit
		}
		defer seg.Close()

		err = manual.Apply(ctx, seg, op)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, manual.ErrNotInServiceMode):
			fmt.Println("Operation only allowed in service mode.")
		case errors.Is(err, manual.ErrDoorsOpen):
			fmt.Println("Operation not allowed while doors are open.")
		case errors.Is(err, manual.ErrMoving):
			fmt.Println("Operation not allowed while elevator is moving.")
		default:
			return fmt.Errorf("car %s: %w", name, err)
		}
		return errExit
	},
}
