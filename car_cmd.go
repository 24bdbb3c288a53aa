package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"liftctl/carstate"
	"liftctl/controller"
	"liftctl/floor"
	"liftctl/statesync"
)

var carCmd = &cobra.Command{
	Use:   "car <name> <lowest_floor> <highest_floor> <delay_ms>",
	Short: "Run one elevator car",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		lowest, err := floor.Parse(args[1])
		if err != nil {
			return fmt.Errorf("lowest floor: %w", err)
		}
		highest, err := floor.Parse(args[2])
		if err != nil {
			return fmt.Errorf("highest floor: %w", err)
		}
		if lowest > highest {
			return fmt.Errorf("lowest floor %v is above highest floor %v", lowest, highest)
		}
		ms, err := strconv.Atoi(args[3])
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid delay %q", args[3])
		}
		delay := time.Duration(ms) * time.Millisecond

		seg := carstate.NewLocal(carstate.New(lowest))
		defer seg.Close()
		srv, err := statesync.Create(carstate.SegmentPath(cfg.SegmentDir, name), seg, cfg.LockTimeout)
		if err != nil {
			return err
		}
		defer srv.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			if err := srv.Serve(ctx); err != nil {
				glog.Errorf("car %s: segment server: %v", name, err)
			}
		}()
		glog.Infof("car %s: floors %v to %v, segment %s", name, lowest, highest, srv.Path())

		car := controller.NewCar(controller.Options{
			Name:           name,
			Lowest:         lowest,
			Highest:        highest,
			Delay:          delay,
			ReconnectDelay: cfg.ReconnectDelay,
			DispatcherAddr: cfg.ControllerAddr(),
		}, seg)
		return car.Run(ctx)
	},
}
