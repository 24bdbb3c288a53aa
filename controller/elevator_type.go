package controller

import (
	"time"

	"liftctl/carstate"
	"liftctl/floor"
	"liftctl/types"
)

// missedHeartbeatLimit is how many observation cycles the safety monitor
// may leave the heartbeat unrefreshed before the car declares emergency.
const missedHeartbeatLimit = 3

type Options struct {
	Name           string
	Lowest         floor.ID
	Highest        floor.ID
	Delay          time.Duration
	ReconnectDelay time.Duration
	DispatcherAddr string
}

// Car drives one elevator car through its shared state segment.
type Car struct {
	name           string
	lowest         floor.ID
	highest        floor.ID
	delay          time.Duration
	reconnectDelay time.Duration
	dispatcherAddr string
	seg            carstate.Segment

	// owned by the motion loop
	phase            types.DoorStatus
	phaseDeadline    time.Time
	nextHeartbeat    time.Time
	missedHeartbeats int
}

func NewCar(opts Options, seg carstate.Segment) *Car {
	reconnect := opts.ReconnectDelay
	if reconnect <= 0 {
		reconnect = opts.Delay
	}
	return &Car{
		name:           opts.Name,
		lowest:         opts.Lowest,
		highest:        opts.Highest,
		delay:          opts.Delay,
		reconnectDelay: reconnect,
		dispatcherAddr: opts.DispatcherAddr,
		seg:            seg,
		phase:          types.ST_Closed,
	}
}

func (c *Car) GetName() string {
	return c.name
}

// report pairs a car's name with a state snapshot for the dispatcher.
type report struct {
	name  string
	state carstate.CarState
}

func (r report) GetName() string {
	return r.name
}

func (r report) GetStatus() types.DoorStatus {
	return r.state.Status
}

func (r report) GetFloor() floor.ID {
	return r.state.CurrentFloor
}

func (r report) GetDestination() floor.ID {
	return r.state.DestinationFloor
}
