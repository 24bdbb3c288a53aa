package carstate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"liftctl/floor"
	"liftctl/types"
)

// Values of CarState.SafetySystem. The monitor writes HeartbeatAlive on
// every wake, the car acknowledges it with HeartbeatSeen.
const (
	HeartbeatNone  uint8 = 0
	HeartbeatAlive uint8 = 1
	HeartbeatSeen  uint8 = 2
)

var ErrClosed = errors.New("segment closed")

// CarState is the record shared by a car, its safety monitor and the
// manual control tool. Flags are 0 or 1.
type CarState struct {
	CurrentFloor     floor.ID
	DestinationFloor floor.ID
	Status           types.DoorStatus

	OpenButton            uint8
	CloseButton           uint8
	SafetySystem          uint8
	DoorObstruction       uint8
	Overload              uint8
	EmergencyStop         uint8
	IndividualServiceMode uint8
	EmergencyMode         uint8
}

// New returns the state of a car parked with closed doors at lowest.
func New(lowest floor.ID) CarState {
	return CarState{
		CurrentFloor:     lowest,
		DestinationFloor: lowest,
		Status:           types.ST_Closed,
	}
}

// Check reports the first violated consistency rule, or nil.
func (s *CarState) Check() error {
	if !s.CurrentFloor.Valid() {
		return fmt.Errorf("current floor %d out of range", int(s.CurrentFloor))
	}
	if !s.DestinationFloor.Valid() {
		return fmt.Errorf("destination floor %d out of range", int(s.DestinationFloor))
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid status %d", int(s.Status))
	}
	flags := []struct {
		name  string
		value uint8
	}{
		{"open_button", s.OpenButton},
		{"close_button", s.CloseButton},
		{"door_obstruction", s.DoorObstruction},
		{"overload", s.Overload},
		{"emergency_stop", s.EmergencyStop},
		{"individual_service_mode", s.IndividualServiceMode},
		{"emergency_mode", s.EmergencyMode},
	}
	for _, f := range flags {
		if f.value > 1 {
			return fmt.Errorf("flag %s has value %d", f.name, f.value)
		}
	}
	if s.SafetySystem > HeartbeatSeen {
		return fmt.Errorf("flag safety_system has value %d", s.SafetySystem)
	}
	if s.DoorObstruction == 1 && s.Status != types.ST_Opening && s.Status != types.ST_Closing {
		return fmt.Errorf("door obstruction while %v", s.Status)
	}
	return nil
}

// Segment is a car's shared state: a record behind a lock with a
// broadcast wake-up. Every successful broadcast bumps the generation.
type Segment interface {
	// Do runs fn with the lock held. When fn reports a change the state is
	// stored and all waiters are woken.
	Do(ctx context.Context, fn func(s *CarState) bool) (uint64, error)

	// Wait blocks until a broadcast newer than gen, until timeout elapses
	// (0 waits forever) or until ctx is done. It returns the current
	// generation.
	Wait(ctx context.Context, gen uint64, timeout time.Duration) (uint64, error)

	Close() error
}

// Snapshot returns a copy of the state.
func Snapshot(ctx context.Context, seg Segment) (CarState, uint64, error) {
	var snap CarState
	gen, err := seg.Do(ctx, func(s *CarState) bool {
		snap = *s
		return false
	})
	return snap, gen, err
}

// SegmentName derives the segment name of a car.
func SegmentName(car string) string {
	return "car" + car
}

// SegmentPath is where the named segment of a car lives under dir.
func SegmentPath(dir, car string) string {
	return filepath.Join(dir, SegmentName(car)+".sock")
}
