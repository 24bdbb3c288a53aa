package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"liftctl/carstate"
	"liftctl/floor"
	"liftctl/types"
)

const minWait = time.Millisecond

// Run drives the car until ctx is done or the segment is closed. The
// motion loop owns every door and movement transition; the network loop
// talks to the dispatcher and only touches the segment under its lock.
func (c *Car) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runNetwork(ctx)
	}()

	err := c.runMotion(ctx)
	cancel()
	wg.Wait()

	if errors.Is(err, context.Canceled) || errors.Is(err, carstate.ErrClosed) {
		return nil
	}
	return err
}

func (c *Car) runMotion(ctx context.Context) error {
	for {
		gen, err := c.seg.Do(ctx, func(s *carstate.CarState) bool {
			return c.step(s, time.Now())
		})
		if err != nil {
			return err
		}
		if _, err := c.seg.Wait(ctx, gen, c.nextWake(time.Now())); err != nil {
			return err
		}
	}
}

// step applies every transition due at now and reports whether the state
// changed.
func (c *Car) step(s *carstate.CarState, now time.Time) bool {
	before := *s

	if s.Status != c.phase {
		// changed behind our back, e.g. the safety monitor reopening doors
		c.enter(s.Status, now)
	}
	c.checkHeartbeat(s, now)

	if s.EmergencyMode == 1 {
		c.holdForEmergency(s, now)
	} else {
		c.advance(s, now)
	}

	return *s != before
}

func (c *Car) advance(s *carstate.CarState, now time.Time) {
	switch s.Status {
	case types.ST_Opening:
		if c.expired(now) {
			c.setStatus(s, types.ST_Open, now)
		}

	case types.ST_Open:
		if s.OpenButton == 1 {
			s.OpenButton = 0
			c.enter(types.ST_Open, now)
		}
		if s.CloseButton == 1 {
			s.CloseButton = 0
			c.setStatus(s, types.ST_Closing, now)
		} else if c.expired(now) && s.IndividualServiceMode == 0 {
			c.setStatus(s, types.ST_Closing, now)
		}

	case types.ST_Closing:
		s.CloseButton = 0
		if s.OpenButton == 1 {
			s.OpenButton = 0
			c.setStatus(s, types.ST_Opening, now)
		} else if c.expired(now) {
			c.setStatus(s, types.ST_Closed, now)
			c.closed(s, now)
		}

	case types.ST_Between:
		if !c.expired(now) {
			return
		}
		dir := types.DirectionOf(s.CurrentFloor, s.DestinationFloor)
		s.CurrentFloor = floor.Step(s.CurrentFloor, int(dir))
		c.setStatus(s, types.ST_Closed, now)
		if s.CurrentFloor == s.DestinationFloor {
			glog.Infof("car %s: arrived at floor %v", c.name, s.CurrentFloor)
			if s.IndividualServiceMode == 0 {
				c.setStatus(s, types.ST_Opening, now)
			}
			return
		}
		c.closed(s, now)

	case types.ST_Closed:
		c.closed(s, now)
	}
}

// closed handles a car at rest with closed doors: open on request or set
// off toward the destination.
func (c *Car) closed(s *carstate.CarState, now time.Time) {
	if s.OpenButton == 1 {
		s.OpenButton = 0
		c.setStatus(s, types.ST_Opening, now)
		return
	}
	s.CloseButton = 0

	if s.DestinationFloor == s.CurrentFloor {
		return
	}
	if !floor.Within(s.DestinationFloor, c.lowest, c.highest) {
		glog.Warningf("car %s: destination %v outside %v..%v, ignored", c.name, s.DestinationFloor, c.lowest, c.highest)
		s.DestinationFloor = s.CurrentFloor
		return
	}
	c.setStatus(s, types.ST_Between, now)
}

// holdForEmergency keeps the car where it is with its doors open.
func (c *Car) holdForEmergency(s *carstate.CarState, now time.Time) {
	s.DestinationFloor = s.CurrentFloor
	s.OpenButton = 0
	s.CloseButton = 0

	switch s.Status {
	case types.ST_Closed, types.ST_Closing, types.ST_Between:
		c.setStatus(s, types.ST_Opening, now)
	case types.ST_Opening:
		if c.expired(now) {
			c.setStatus(s, types.ST_Open, now)
		}
	}
}

// checkHeartbeat acknowledges the safety monitor's heartbeat once per
// delay and declares emergency after missedHeartbeatLimit silent cycles.
func (c *Car) checkHeartbeat(s *carstate.CarState, now time.Time) {
	if now.Before(c.nextHeartbeat) {
		return
	}
	c.nextHeartbeat = now.Add(c.delay)

	switch s.SafetySystem {
	case carstate.HeartbeatAlive:
		s.SafetySystem = carstate.HeartbeatSeen
		c.missedHeartbeats = 0
	case carstate.HeartbeatSeen:
		c.missedHeartbeats++
		if c.missedHeartbeats >= missedHeartbeatLimit && s.EmergencyMode == 0 {
			glog.Errorf("car %s: safety system not responding, entering emergency mode", c.name)
			s.EmergencyMode = 1
		}
	}
}

func (c *Car) setStatus(s *carstate.CarState, status types.DoorStatus, now time.Time) {
	glog.V(1).Infof("car %s: %v -> %v at floor %v", c.name, s.Status, status, s.CurrentFloor)
	s.Status = status
	c.enter(status, now)
}

func (c *Car) enter(status types.DoorStatus, now time.Time) {
	c.phase = status
	c.phaseDeadline = now.Add(c.delay)
}

func (c *Car) expired(now time.Time) bool {
	return !now.Before(c.phaseDeadline)
}

// nextWake bounds the next wait by the running phase timer and the
// heartbeat cadence.
func (c *Car) nextWake(now time.Time) time.Duration {
	wake := c.nextHeartbeat
	if c.phaseDeadline.After(now) && c.phaseDeadline.Before(wake) {
		wake = c.phaseDeadline
	}
	d := wake.Sub(now)
	if d < minWait {
		d = minWait
	}
	return d
}
