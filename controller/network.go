package controller

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/golang/glog"

	"liftctl/carstate"
	"liftctl/types"
	"liftctl/wire"
)

func (c *Car) runNetwork(ctx context.Context) {
	for ctx.Err() == nil {
		if err := c.awaitNormalMode(ctx); err != nil {
			return
		}
		conn, err := c.connect(ctx)
		if err != nil {
			return
		}
		c.session(ctx, conn)
	}
}

// awaitNormalMode blocks while the car is in individual service or
// emergency mode.
func (c *Car) awaitNormalMode(ctx context.Context) error {
	for {
		snap, gen, err := carstate.Snapshot(ctx, c.seg)
		if err != nil {
			return err
		}
		if snap.IndividualServiceMode == 0 && snap.EmergencyMode == 0 {
			return nil
		}
		if _, err := c.seg.Wait(ctx, gen, 0); err != nil {
			return err
		}
	}
}

// connect dials the dispatcher until it answers. There is no retry cap:
// the car stays locally operable while disconnected.
func (c *Car) connect(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", c.dispatcherAddr)
		if err == nil {
			glog.Infof("car %s: connected to controller at %s", c.name, c.dispatcherAddr)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		glog.Warningf("car %s: failed to connect, retrying in %v: %v", c.name, c.reconnectDelay, err)

		select {
		case <-time.After(c.reconnectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// session registers the car and then alternates between assignments from
// the dispatcher and periodic status pushes until the connection ends or
// the car leaves normal operation.
func (c *Car) session(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := wire.Send(conn, wire.Register(c.name, c.lowest, c.highest)); err != nil {
		glog.Warningf("car %s: registration failed: %v", c.name, err)
		return
	}
	glog.Infof("car %s: registered with controller (floors %v to %v)", c.name, c.lowest, c.highest)

	quit := make(chan struct{})
	defer close(quit)
	incoming := make(chan wire.Message)
	readErr := make(chan error, 1)
	go receive(conn, incoming, readErr, quit)

	ticker := time.NewTicker(c.delay)
	defer ticker.Stop()

	for {
		select {
		case msg := <-incoming:
			if err := c.handleAssignment(ctx, msg); err != nil {
				glog.Warningf("car %s: storing assignment %v failed: %v", c.name, msg, err)
				return
			}

		case err := <-readErr:
			if wire.IsDisconnect(err) {
				glog.Warningf("car %s: controller closed the connection", c.name)
			} else {
				glog.Warningf("car %s: connection lost: %v", c.name, err)
			}
			return

		case <-ticker.C:
			leave, err := c.pushStatus(ctx, conn)
			if err != nil {
				if ctx.Err() == nil {
					glog.Warningf("car %s: status push failed: %v", c.name, err)
				}
				return
			}
			if leave {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func receive(conn net.Conn, incoming chan<- wire.Message, readErr chan<- error, quit <-chan struct{}) {
	for {
		msg, err := wire.Receive(conn)
		if err != nil {
			if errors.Is(err, wire.ErrOversized) || errors.Is(err, wire.ErrMalformed) || errors.Is(err, wire.ErrUnknownCommand) {
				glog.Warningf("dropping message from controller: %v", err)
				continue
			}
			readErr <- err
			return
		}
		select {
		case incoming <- msg:
		case <-quit:
			return
		}
	}
}

// handleAssignment stores a FLOOR target as the car's destination. A
// target at the current floor opens the doors straight away.
func (c *Car) handleAssignment(ctx context.Context, msg wire.Message) error {
	if msg.Kind != wire.KindFloor {
		glog.Warningf("car %s: unexpected message from controller: %v", c.name, msg)
		return nil
	}
	glog.V(1).Infof("car %s: assigned floor %v", c.name, msg.Floor)

	_, err := c.seg.Do(ctx, func(s *carstate.CarState) bool {
		if s.EmergencyMode == 1 || s.IndividualServiceMode == 1 {
			return false
		}
		s.DestinationFloor = msg.Floor
		if msg.Floor == s.CurrentFloor && s.Status == types.ST_Closed {
			s.Status = types.ST_Opening
		}
		return true
	})
	return err
}

// pushStatus reports the car's state. In service or emergency mode it
// sends the one-shot notification instead and reports that the session
// must end.
func (c *Car) pushStatus(ctx context.Context, conn net.Conn) (bool, error) {
	snap, _, err := carstate.Snapshot(ctx, c.seg)
	if err != nil {
		return true, err
	}

	switch {
	case snap.IndividualServiceMode == 1:
		glog.Infof("car %s: individual service mode, leaving controller", c.name)
		return true, wire.Send(conn, wire.IndividualService)
	case snap.EmergencyMode == 1:
		glog.Infof("car %s: emergency mode, leaving controller", c.name)
		return true, wire.Send(conn, wire.Emergency)
	}

	status := wire.StatusOf(report{name: c.name, state: snap})
	glog.V(2).Infof("car %s: %v", c.name, status)
	return false, wire.Send(conn, status)
}
