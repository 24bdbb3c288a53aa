package types

import (
	"fmt"

	"liftctl/floor"
)

// CarStatus is the status snapshot a car reports to the dispatcher.
type CarStatus interface {
	GetName() string
	GetStatus() DoorStatus
	GetFloor() floor.ID
	GetDestination() floor.ID
}

type DoorStatus int

const (
	ST_Closed DoorStatus = iota
	ST_Opening
	ST_Open
	ST_Closing
	ST_Between
)

var doorStatusNames = [...]string{
	ST_Closed:  "Closed",
	ST_Opening: "Opening",
	ST_Open:    "Open",
	ST_Closing: "Closing",
	ST_Between: "Between",
}

func (s DoorStatus) Valid() bool {
	return s >= ST_Closed && s <= ST_Between
}

func (s DoorStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("DoorStatus(%d)", int(s))
	}
	return doorStatusNames[s]
}

func ParseDoorStatus(text string) (DoorStatus, error) {
	for s, name := range doorStatusNames {
		if name == text {
			return DoorStatus(s), nil
		}
	}
	return 0, fmt.Errorf("unknown door status %q", text)
}

type Direction int

const (
	MD_Down Direction = -1
	MD_Stop Direction = 0
	MD_Up   Direction = 1
)

// DirectionOf returns the direction of travel from one floor to another.
func DirectionOf(from, to floor.ID) Direction {
	switch {
	case to > from:
		return MD_Up
	case to < from:
		return MD_Down
	}
	return MD_Stop
}

func (d Direction) String() string {
	switch d {
	case MD_Up:
		return "up"
	case MD_Down:
		return "down"
	}
	return "stop"
}
