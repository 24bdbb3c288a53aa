package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"liftctl/call"
)

var callCmd = &cobra.Command{
	Use:   "call <source_floor> <destination_floor>",
	Short: "Request a car",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := call.Request(cmd.Context(), cfg.ControllerAddr(), args[0], args[1], cfg.RequestTimeout)
		switch {
		case err == nil:
			fmt.Println(result)
			return nil
		case errors.Is(err, call.ErrSameFloor):
			fmt.Println("You are already on that floor!")
			return nil
		case errors.Is(err, call.ErrInvalidFloor):
			fmt.Println("Invalid floor(s) specified.")
		case errors.Is(err, call.ErrUnreachable):
			fmt.Println("Unable to connect to elevator system.")
		default:
			fmt.Println(err)
		}
		return errExit
	},
}
