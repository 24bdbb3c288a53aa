package assigner

import (
	"cmp"
	"slices"

	"liftctl/floor"
	"liftctl/types"
)

// Itinerary is the stop queue of one car. Stops of upward calls are kept
// in ascending order, stops of downward calls in descending order. Neither
// queue holds a floor twice, but a floor may wait in both when riders in
// each direction need it. The queue matching Heading is served first.
type Itinerary struct {
	Up      []floor.ID
	Down    []floor.ID
	Heading types.Direction
}

// Add queues the source and destination of a call in the queue of the
// call's direction. Floors already in that queue are skipped.
func (it *Itinerary) Add(src, dst floor.ID) {
	dir := types.DirectionOf(src, dst)
	if it.Len() == 0 {
		it.Heading = dir
	}
	for _, f := range []floor.ID{src, dst} {
		if dir == types.MD_Down {
			if slices.Contains(it.Down, f) {
				continue
			}
			i, _ := slices.BinarySearchFunc(it.Down, f, descending)
			it.Down = slices.Insert(it.Down, i, f)
		} else {
			if slices.Contains(it.Up, f) {
				continue
			}
			i, _ := slices.BinarySearch(it.Up, f)
			it.Up = slices.Insert(it.Up, i, f)
		}
	}
}

// Remove drops a visited stop from the queue being served, or from the
// other one when only that holds it, and turns around once the current
// heading has no stops left.
func (it *Itinerary) Remove(f floor.ID) bool {
	serving, other := &it.Up, &it.Down
	if it.Heading == types.MD_Down {
		serving, other = other, serving
	}
	removed := dropStop(serving, f) || dropStop(other, f)

	switch {
	case len(it.Up) == 0 && len(it.Down) == 0:
		it.Heading = types.MD_Stop
	case it.Heading == types.MD_Down && len(it.Down) == 0:
		it.Heading = types.MD_Up
	case it.Heading != types.MD_Down && len(it.Up) == 0:
		it.Heading = types.MD_Down
	}
	return removed
}

func dropStop(queue *[]floor.ID, f floor.ID) bool {
	i := slices.Index(*queue, f)
	if i < 0 {
		return false
	}
	*queue = slices.Delete(*queue, i, i+1)
	return true
}

func (it *Itinerary) Contains(f floor.ID) bool {
	return slices.Contains(it.Up, f) || slices.Contains(it.Down, f)
}

func (it *Itinerary) Len() int {
	return len(it.Up) + len(it.Down)
}

// Head is the next stop to visit.
func (it *Itinerary) Head() (floor.ID, bool) {
	stops := it.Stops()
	if len(stops) == 0 {
		return 0, false
	}
	return stops[0], true
}

// Stops lists the queued floors in visiting order.
func (it *Itinerary) Stops() []floor.ID {
	stops := make([]floor.ID, 0, it.Len())
	if it.Heading == types.MD_Down {
		stops = append(stops, it.Down...)
		return append(stops, it.Up...)
	}
	stops = append(stops, it.Up...)
	return append(stops, it.Down...)
}

func descending(a, b floor.ID) int {
	return cmp.Compare(b, a)
}
