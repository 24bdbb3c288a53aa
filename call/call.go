// Package call is the rider side of the system: it requests a car for a
// trip between two floors.
package call

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"liftctl/floor"
	"liftctl/wire"
)

var (
	ErrInvalidFloor = errors.New("invalid floor(s) specified")
	ErrSameFloor    = errors.New("already on that floor")
	ErrUnreachable  = errors.New("unable to connect to elevator system")
	ErrRejected     = errors.New("request rejected by controller")
)

// Result is the controller's answer to a call.
type Result struct {
	Car         string
	Unavailable bool
}

func (r Result) String() string {
	if r.Unavailable {
		return "Sorry, no car is available to take this request."
	}
	return fmt.Sprintf("Car %s is arriving.", r.Car)
}

// Request validates the floor tokens and asks the controller at addr for
// a car. Nothing is sent when the floors are invalid or equal.
func Request(ctx context.Context, addr, source, destination string, timeout time.Duration) (Result, error) {
	src, errSrc := floor.Parse(source)
	dst, errDst := floor.Parse(destination)
	if errSrc != nil || errDst != nil {
		return Result{}, ErrInvalidFloor
	}
	if src == dst {
		return Result{}, ErrSameFloor
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := wire.Send(conn, wire.Call(src, dst)); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	reply, err := wire.Receive(conn)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	switch reply.Kind {
	case wire.KindAssigned:
		return Result{Car: reply.Name}, nil
	case wire.KindUnavailable:
		return Result{Unavailable: true}, nil
	case wire.KindError:
		return Result{}, fmt.Errorf("%w: %s", ErrRejected, reply.Text)
	}
	return Result{}, fmt.Errorf("%w: unexpected reply %v", ErrRejected, reply)
}
