// Package manual implements the operator controls of a car: door buttons,
// the emergency stop, individual service mode and stepwise movement while
// in service.
package manual

import (
	"context"
	"errors"
	"fmt"

	"liftctl/carstate"
	"liftctl/floor"
	"liftctl/types"
)

type Operation string

const (
	OpOpen       Operation = "open"
	OpClose      Operation = "close"
	OpStop       Operation = "stop"
	OpServiceOn  Operation = "service_on"
	OpServiceOff Operation = "service_off"
	OpUp         Operation = "up"
	OpDown       Operation = "down"
)

var Operations = []Operation{OpOpen, OpClose, OpStop, OpServiceOn, OpServiceOff, OpUp, OpDown}

var (
	ErrInvalidOperation = errors.New("invalid operation")
	ErrNotInServiceMode = errors.New("operation only allowed in service mode")
	ErrDoorsOpen        = errors.New("operation not allowed while doors are open")
	ErrMoving           = errors.New("operation not allowed while elevator is moving")
)

func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidOperation, s)
}

// Apply performs op on the car behind seg and broadcasts the change.
func Apply(ctx context.Context, seg carstate.Segment, op Operation) error {
	var opErr error
	_, err := seg.Do(ctx, func(s *carstate.CarState) bool {
		opErr = apply(s, op)
		return opErr == nil
	})
	if err != nil {
		return err
	}
	return opErr
}

func apply(s *carstate.CarState, op Operation) error {
	switch op {
	case OpOpen:
		s.OpenButton = 1
	case OpClose:
		s.CloseButton = 1
	case OpStop:
		s.EmergencyStop = 1
	case OpServiceOn:
		s.IndividualServiceMode = 1
		s.EmergencyMode = 0
	case OpServiceOff:
		s.IndividualServiceMode = 0
	case OpUp, OpDown:
		if s.IndividualServiceMode != 1 {
			return ErrNotInServiceMode
		}
		if s.Status == types.ST_Between {
			return ErrMoving
		}
		if s.Status != types.ST_Closed {
			return ErrDoorsOpen
		}
		dir := int(types.MD_Up)
		if op == OpDown {
			dir = int(types.MD_Down)
		}
		// the car itself refuses floors outside its own range
		if next := floor.Step(s.CurrentFloor, dir); next.Valid() {
			s.DestinationFloor = next
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOperation, op)
	}
	return nil
}
