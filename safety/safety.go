package safety

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"liftctl/carstate"
	"liftctl/types"
)

// Monitor enforces the safety rules of one car on every change of its
// state.
type Monitor struct {
	car string
	seg carstate.Segment
}

func NewMonitor(car string, seg carstate.Segment) *Monitor {
	return &Monitor{car: car, seg: seg}
}

// Run inspects the state once and then again after every broadcast. It
// returns nil when ctx is cancelled and an error when the segment goes
// away.
func (m *Monitor) Run(ctx context.Context) error {
	glog.Infof("safety system for car %s is running", m.car)

	gen, err := m.check(ctx)
	for err == nil {
		if _, err = m.seg.Wait(ctx, gen, 0); err != nil {
			break
		}
		gen, err = m.check(ctx)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *Monitor) check(ctx context.Context) (uint64, error) {
	return m.seg.Do(ctx, func(s *carstate.CarState) bool {
		changed, findings := Inspect(s)
		for _, f := range findings {
			glog.Errorf("SAFETY: car %s: %s", m.car, f)
		}
		return changed
	})
}

// Inspect applies the safety rules to s in order and reports whether s
// changed, together with a description of every fault found.
func Inspect(s *carstate.CarState) (bool, []string) {
	before := *s
	var findings []string

	if s.SafetySystem != carstate.HeartbeatAlive {
		s.SafetySystem = carstate.HeartbeatAlive
	}

	if s.DoorObstruction == 1 && s.Status == types.ST_Closing {
		s.Status = types.ST_Opening
	}

	// flags are consumed even in emergency mode
	if s.EmergencyStop == 1 {
		findings = append(findings, "emergency stop")
		s.EmergencyMode = 1
		s.EmergencyStop = 0
	}
	if s.Overload == 1 {
		findings = append(findings, "overload detected")
		s.EmergencyMode = 1
		s.Overload = 0
	}

	if s.EmergencyMode != 1 {
		if err := s.Check(); err != nil {
			findings = append(findings, fmt.Sprintf("data consistency error: %v", err))
			s.EmergencyMode = 1
		}
	}

	return *s != before, findings
}
