package wire

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"liftctl/floor"
	"liftctl/types"
)

type Kind int

const (
	KindCall Kind = iota
	KindRegister
	KindAssigned
	KindStatus
	KindFloor
	KindIndividualService
	KindEmergency
	KindUnavailable
	KindError
)

const (
	ReplyUnknownCommand = "Unknown command"
	ReplyInvalidCall    = "Invalid call"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMalformed      = errors.New("malformed message")
)

// Message is one payload of the dispatcher protocol. Only the fields of
// its Kind are meaningful.
type Message struct {
	Kind Kind

	Name string // KindRegister, KindAssigned
	Text string // KindError

	Source      floor.ID // KindCall
	Destination floor.ID // KindCall, KindStatus
	Lowest      floor.ID // KindRegister
	Highest     floor.ID // KindRegister
	Current     floor.ID // KindStatus
	Floor       floor.ID // KindFloor

	Status types.DoorStatus // KindStatus
}

func Call(src, dst floor.ID) Message {
	return Message{Kind: KindCall, Source: src, Destination: dst}
}

func Register(name string, lowest, highest floor.ID) Message {
	return Message{Kind: KindRegister, Name: name, Lowest: lowest, Highest: highest}
}

func Assigned(name string) Message {
	return Message{Kind: KindAssigned, Name: name}
}

func Status(status types.DoorStatus, current, destination floor.ID) Message {
	return Message{Kind: KindStatus, Status: status, Current: current, Destination: destination}
}

// StatusOf builds the STATUS report of a car.
func StatusOf(car types.CarStatus) Message {
	return Status(car.GetStatus(), car.GetFloor(), car.GetDestination())
}

func Floor(f floor.ID) Message {
	return Message{Kind: KindFloor, Floor: f}
}

func Error(text string) Message {
	return Message{Kind: KindError, Text: text}
}

var (
	IndividualService = Message{Kind: KindIndividualService}
	Emergency         = Message{Kind: KindEmergency}
	Unavailable       = Message{Kind: KindUnavailable}
)

func (m Message) String() string {
	switch m.Kind {
	case KindCall:
		return fmt.Sprintf("CALL %v %v", m.Source, m.Destination)
	case KindRegister:
		return fmt.Sprintf("CAR %s %v %v", m.Name, m.Lowest, m.Highest)
	case KindAssigned:
		return "CAR " + m.Name
	case KindStatus:
		return fmt.Sprintf("STATUS %v %v %v", m.Status, m.Current, m.Destination)
	case KindFloor:
		return "FLOOR " + m.Floor.String()
	case KindIndividualService:
		return "INDIVIDUAL SERVICE"
	case KindEmergency:
		return "EMERGENCY"
	case KindUnavailable:
		return "UNAVAILABLE"
	case KindError:
		return "ERROR " + m.Text
	}
	return ""
}

// Parse decodes a payload. The first token selects the command; a CAR
// payload with a single argument is an assignment reply, with three a
// registration.
func Parse(payload string) (Message, error) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return Message{}, ErrUnknownCommand
	}
	args := fields[1:]

	switch fields[0] {
	case "CALL":
		floors, err := parseFloors(payload, args, 2)
		if err != nil {
			return Message{}, err
		}
		return Call(floors[0], floors[1]), nil

	case "CAR":
		switch len(args) {
		case 1:
			return Assigned(args[0]), nil
		case 3:
			floors, err := parseFloors(payload, args[1:], 2)
			if err != nil {
				return Message{}, err
			}
			if floors[0] > floors[1] {
				return Message{}, fmt.Errorf("%w: %q: lowest above highest", ErrMalformed, payload)
			}
			return Register(args[0], floors[0], floors[1]), nil
		}

	case "STATUS":
		if len(args) != 3 {
			break
		}
		status, err := types.ParseDoorStatus(args[0])
		if err != nil {
			return Message{}, fmt.Errorf("%w: %q: %v", ErrMalformed, payload, err)
		}
		floors, err := parseFloors(payload, args[1:], 2)
		if err != nil {
			return Message{}, err
		}
		return Status(status, floors[0], floors[1]), nil

	case "FLOOR":
		floors, err := parseFloors(payload, args, 1)
		if err != nil {
			return Message{}, err
		}
		return Floor(floors[0]), nil

	case "INDIVIDUAL":
		if len(args) == 1 && args[0] == "SERVICE" {
			return IndividualService, nil
		}

	case "EMERGENCY":
		if len(args) == 0 {
			return Emergency, nil
		}

	case "UNAVAILABLE":
		if len(args) == 0 {
			return Unavailable, nil
		}

	case "ERROR":
		return Error(strings.Join(args, " ")), nil

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}

	return Message{}, fmt.Errorf("%w: %q", ErrMalformed, payload)
}

func parseFloors(payload string, args []string, want int) ([]floor.ID, error) {
	if len(args) != want {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, payload)
	}
	floors := make([]floor.ID, 0, want)
	for _, arg := range args {
		f, err := floor.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, payload, err)
		}
		floors = append(floors, f)
	}
	return floors, nil
}

// Send frames and writes m.
func Send(w io.Writer, m Message) error {
	return WriteMessage(w, m.String())
}

// Receive reads and parses one message.
func Receive(r io.Reader) (Message, error) {
	payload, err := ReadMessage(r)
	if err != nil {
		return Message{}, err
	}
	return Parse(payload)
}
