package assigner

import (
	"sync"

	"github.com/golang/glog"
	"github.com/tiendc/go-deepcopy"

	"liftctl/floor"
	"liftctl/types"
	"liftctl/wire"
)

const (
	oppositeDirectionPenalty = 1000
	passedSourcePenalty      = 500
)

// Sender delivers a message over a car's connection.
type Sender interface {
	Send(msg wire.Message) error
}

// CarRecord is the dispatcher's view of one registered car.
type CarRecord struct {
	Name    string
	Lowest  floor.ID
	Highest floor.ID
	Active  bool

	// last reported by the car
	Status      types.DoorStatus
	Current     floor.ID
	Destination floor.ID

	Queue Itinerary

	// Target is the stop last pushed to the car, valid while InFlight.
	Target   floor.ID
	InFlight bool
}

var _ types.CarStatus = CarRecord{}

func (r CarRecord) GetName() string {
	return r.Name
}

func (r CarRecord) GetStatus() types.DoorStatus {
	return r.Status
}

func (r CarRecord) GetFloor() floor.ID {
	return r.Current
}

func (r CarRecord) GetDestination() floor.ID {
	return r.Destination
}

type entry struct {
	rec  CarRecord
	conn Sender
}

// Registry holds every car that ever registered, in registration order.
// All access is serialized by one lock.
type Registry struct {
	mtx   sync.Mutex
	cars  map[string]*entry
	order []string
}

func NewRegistry() *Registry {
	return &Registry{cars: make(map[string]*entry)}
}

// Register adds a car or reactivates a known one on a new connection. A
// returning car keeps its queue and gets its in-flight stop again.
func (r *Registry) Register(name string, lowest, highest floor.ID, conn Sender) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e, ok := r.cars[name]
	if !ok {
		e = &entry{rec: CarRecord{
			Name:        name,
			Lowest:      lowest,
			Highest:     highest,
			Status:      types.ST_Closed,
			Current:     lowest,
			Destination: lowest,
		}}
		r.cars[name] = e
		r.order = append(r.order, name)
		glog.Infof("Registered new car: %s (floors %v to %v)", name, lowest, highest)
	} else {
		glog.Infof("Car %s reconnected (floors %v to %v)", name, lowest, highest)
	}

	e.conn = conn
	e.rec.Lowest = lowest
	e.rec.Highest = highest
	e.rec.Active = true

	if e.rec.InFlight {
		r.push(e, e.rec.Target)
	} else {
		r.dispatch(e)
	}
}

// Assign picks a car for the call and queues the call's stops with it.
// It reports false when no car is eligible.
func (r *Registry) Assign(src, dst floor.ID) (string, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e := r.selectLocked(src, dst)
	if e == nil {
		glog.Infof("No car available for call %v -> %v", src, dst)
		return "", false
	}

	e.rec.Queue.Add(src, dst)
	glog.Infof("Assigned call %v -> %v to car %s, queue %v", src, dst, e.rec.Name, e.rec.Queue.Stops())
	if !e.rec.InFlight {
		r.dispatch(e)
	}
	return e.rec.Name, true
}

// Select returns the car Assign would choose, without assigning.
func (r *Registry) Select(src, dst floor.ID) (string, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if e := r.selectLocked(src, dst); e != nil {
		return e.rec.Name, true
	}
	return "", false
}

func (r *Registry) selectLocked(src, dst floor.ID) *entry {
	var best *entry
	bestCost := 0
	for _, name := range r.order {
		e := r.cars[name]
		if !eligible(e.rec, src, dst) {
			continue
		}
		// strict comparison keeps the earliest registered car on ties
		if c := cost(e.rec, src, dst); best == nil || c < bestCost {
			best, bestCost = e, c
		}
	}
	return best
}

func eligible(rec CarRecord, src, dst floor.ID) bool {
	if !rec.Active {
		return false
	}
	if !floor.Within(src, rec.Lowest, rec.Highest) || !floor.Within(dst, rec.Lowest, rec.Highest) {
		return false
	}
	switch rec.Status {
	case types.ST_Between, types.ST_Opening, types.ST_Open:
		return false
	}
	return true
}

// cost scores a car for a call from its last reported position and
// heading. Queued stops are not taken into account.
func cost(rec CarRecord, src, dst floor.ID) int {
	c := floor.Distance(rec.Current, src)

	heading := types.DirectionOf(rec.Current, rec.Destination)
	if heading == types.MD_Stop {
		return c
	}
	if heading != types.DirectionOf(src, dst) {
		c += oppositeDirectionPenalty
	}
	if toSource := types.DirectionOf(rec.Current, src); toSource != types.MD_Stop && toSource != heading {
		c += passedSourcePenalty
	}
	return c
}

// UpdateStatus records a STATUS report. Once the car stands at its target
// with the doors no longer shut for travel, the stop is done and the next
// one is pushed.
func (r *Registry) UpdateStatus(name string, conn Sender, status types.DoorStatus, current, destination floor.ID) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e, ok := r.cars[name]
	if !ok || e.conn != conn {
		return
	}
	e.rec.Status = status
	e.rec.Current = current
	e.rec.Destination = destination

	if !e.rec.InFlight || !arrived(e.rec) {
		return
	}
	glog.Infof("Car %s reached floor %v", name, e.rec.Target)
	e.rec.Queue.Remove(e.rec.Target)
	e.rec.InFlight = false
	r.dispatch(e)
}

func arrived(rec CarRecord) bool {
	return rec.Current == rec.Target &&
		rec.Destination == rec.Target &&
		rec.Status != types.ST_Between
}

// ModeChange takes a car out of scheduling after it announced individual
// service or emergency mode.
func (r *Registry) ModeChange(name string, conn Sender, kind wire.Kind) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e, ok := r.cars[name]
	if !ok || e.conn != conn {
		return
	}
	e.rec.Active = false
	switch kind {
	case wire.KindEmergency:
		glog.Warningf("Car %s is in emergency mode", name)
	case wire.KindIndividualService:
		glog.Infof("Car %s is in individual service mode", name)
	}
}

// Deactivate marks a car inactive when conn is still its connection. The
// queue is kept for a later registration.
func (r *Registry) Deactivate(name string, conn Sender) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e, ok := r.cars[name]
	if !ok || e.conn != conn {
		return
	}
	e.rec.Active = false
	e.conn = nil
	glog.Infof("Car %s disconnected", name)
}

// Snapshot returns a copy of every record in registration order.
func (r *Registry) Snapshot() ([]CarRecord, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	recs := make([]CarRecord, 0, len(r.order))
	for _, name := range r.order {
		recs = append(recs, r.cars[name].rec)
	}
	var out []CarRecord
	if err := deepcopy.Copy(&out, recs); err != nil {
		return nil, err
	}
	return out, nil
}

// Record returns a copy of the named car's record.
func (r *Registry) Record(name string) (CarRecord, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e, ok := r.cars[name]
	if !ok {
		return CarRecord{}, false
	}
	var out CarRecord
	if err := deepcopy.Copy(&out, e.rec); err != nil {
		glog.Errorf("copying record of car %s: %v", name, err)
		return CarRecord{}, false
	}
	return out, true
}

// dispatch pushes the head of the queue to an idle car.
func (r *Registry) dispatch(e *entry) {
	head, ok := e.rec.Queue.Head()
	if !ok {
		return
	}
	e.rec.Target = head
	e.rec.InFlight = true
	r.push(e, head)
}

func (r *Registry) push(e *entry, f floor.ID) {
	if e.conn == nil {
		return
	}
	if err := e.conn.Send(wire.Floor(f)); err != nil {
		glog.Warningf("Sending floor %v to car %s failed: %v", f, e.rec.Name, err)
		return
	}
	glog.V(1).Infof("Sent FLOOR %v to car %s", f, e.rec.Name)
}
