package statesync

import (
	"fmt"
	"strconv"
	"strings"

	"liftctl/carstate"
	"liftctl/floor"
	"liftctl/types"
)

const stateFieldCount = 11

// Serializes a CarState into space separated integers. Values are sent
// raw so that a corrupted record reaches the safety monitor unchanged.
func serialize(s carstate.CarState) string {
	values := []int{
		int(s.Status),
		int(s.CurrentFloor),
		int(s.DestinationFloor),
		int(s.OpenButton),
		int(s.CloseButton),
		int(s.SafetySystem),
		int(s.DoorObstruction),
		int(s.Overload),
		int(s.EmergencyStop),
		int(s.IndividualServiceMode),
		int(s.EmergencyMode),
	}
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = strconv.Itoa(v)
	}
	return strings.Join(fields, " ")
}

// Deserializes the fields written by serialize.
func deserialize(fields []string) (carstate.CarState, error) {
	if len(fields) != stateFieldCount {
		return carstate.CarState{}, fmt.Errorf("state has %d fields, expected %d", len(fields), stateFieldCount)
	}
	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return carstate.CarState{}, fmt.Errorf("state field %d: %w", i, err)
		}
		values[i] = v
	}
	flag := func(i int) (uint8, error) {
		if values[i] < 0 || values[i] > 255 {
			return 0, fmt.Errorf("state field %d out of range: %d", i, values[i])
		}
		return uint8(values[i]), nil
	}

	s := carstate.CarState{
		Status:           types.DoorStatus(values[0]),
		CurrentFloor:     floor.ID(values[1]),
		DestinationFloor: floor.ID(values[2]),
	}
	targets := []*uint8{
		&s.OpenButton,
		&s.CloseButton,
		&s.SafetySystem,
		&s.DoorObstruction,
		&s.Overload,
		&s.EmergencyStop,
		&s.IndividualServiceMode,
		&s.EmergencyMode,
	}
	for i, target := range targets {
		v, err := flag(3 + i)
		if err != nil {
			return carstate.CarState{}, err
		}
		*target = v
	}
	return s, nil
}
