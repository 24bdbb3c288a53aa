package safety

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"liftctl/carstate"
	"liftctl/statesync"
	"liftctl/types"
)

func TestInspectRefreshesHeartbeat(t *testing.T) {
	s := carstate.New(1)
	s.SafetySystem = carstate.HeartbeatSeen

	changed, findings := Inspect(&s)
	if !changed || s.SafetySystem != carstate.HeartbeatAlive || len(findings) != 0 {
		t.Errorf("Heartbeat refresh not as expected: changed=%v findings=%v state=%+v", changed, findings, s)
	}

	changed, _ = Inspect(&s)
	if changed {
		t.Errorf("Inspect of a healthy car expected no change")
	}
}

func TestInspect(t *testing.T) {
	healthy := carstate.New(1)
	healthy.SafetySystem = carstate.HeartbeatAlive

	tests := []struct {
		name      string
		mutate    func(s *carstate.CarState)
		expected  func(s *carstate.CarState)
		emergency bool
	}{
		{
			name: "obstruction while closing reopens",
			mutate: func(s *carstate.CarState) {
				s.Status = types.ST_Closing
				s.DoorObstruction = 1
			},
			expected: func(s *carstate.CarState) {
				s.Status = types.ST_Opening
				s.DoorObstruction = 1
			},
		},
		{
			name: "obstruction while opening is allowed",
			mutate: func(s *carstate.CarState) {
				s.Status = types.ST_Opening
				s.DoorObstruction = 1
			},
			expected: func(s *carstate.CarState) {
				s.Status = types.ST_Opening
				s.DoorObstruction = 1
			},
		},
		{
			name:      "emergency stop",
			mutate:    func(s *carstate.CarState) { s.EmergencyStop = 1 },
			expected:  func(s *carstate.CarState) { s.EmergencyMode = 1 },
			emergency: true,
		},
		{
			name:      "overload",
			mutate:    func(s *carstate.CarState) { s.Overload = 1 },
			expected:  func(s *carstate.CarState) { s.EmergencyMode = 1 },
			emergency: true,
		},
		{
			name: "stop already in emergency is cleared",
			mutate: func(s *carstate.CarState) {
				s.EmergencyMode = 1
				s.EmergencyStop = 1
			},
			expected:  func(s *carstate.CarState) { s.EmergencyMode = 1 },
			emergency: true,
		},
		{
			name: "overload already in emergency is cleared",
			mutate: func(s *carstate.CarState) {
				s.EmergencyMode = 1
				s.Overload = 1
			},
			expected:  func(s *carstate.CarState) { s.EmergencyMode = 1 },
			emergency: true,
		},
		{
			name:      "invalid flag value",
			mutate:    func(s *carstate.CarState) { s.OpenButton = 2 },
			expected:  func(s *carstate.CarState) { s.OpenButton = 2; s.EmergencyMode = 1 },
			emergency: true,
		},
		{
			name:      "invalid status",
			mutate:    func(s *carstate.CarState) { s.Status = types.DoorStatus(9) },
			expected:  func(s *carstate.CarState) { s.Status = types.DoorStatus(9); s.EmergencyMode = 1 },
			emergency: true,
		},
		{
			name:      "floor out of range",
			mutate:    func(s *carstate.CarState) { s.DestinationFloor = 1000 },
			expected:  func(s *carstate.CarState) { s.DestinationFloor = 1000; s.EmergencyMode = 1 },
			emergency: true,
		},
		{
			name: "obstruction with closed doors",
			mutate: func(s *carstate.CarState) {
				s.DoorObstruction = 1
			},
			expected: func(s *carstate.CarState) {
				s.DoorObstruction = 1
				s.EmergencyMode = 1
			},
			emergency: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := healthy
			tc.mutate(&s)
			want := healthy
			tc.expected(&want)

			_, findings := Inspect(&s)
			if s != want {
				t.Errorf("State not as expected.\nExpected: %+v\nWas: %+v", want, s)
			}
			if tc.emergency && len(findings) == 0 {
				t.Errorf("Emergency expected to be reported")
			}
		})
	}
}

// awaitState waits for broadcasts until cond holds for the state.
func awaitState(t *testing.T, seg carstate.Segment, cond func(s carstate.CarState) bool) carstate.CarState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		snap, gen, err := carstate.Snapshot(ctx, seg)
		if err != nil {
			t.Fatalf("state not reached: %v", err)
		}
		if cond(snap) {
			return snap
		}
		if _, err := seg.Wait(ctx, gen, 0); err != nil {
			t.Fatalf("state not reached, last %+v: %v", snap, err)
		}
	}
}

func TestMonitorReopensObstructedDoors(t *testing.T) {
	initial := carstate.New(1)
	initial.Status = types.ST_Closing
	initial.DoorObstruction = 1
	seg := carstate.NewLocal(initial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewMonitor("A", seg).Run(ctx) }()

	snap := awaitState(t, seg, func(s carstate.CarState) bool { return s.Status == types.ST_Opening })
	if snap.SafetySystem != carstate.HeartbeatAlive {
		t.Errorf("Heartbeat expected alive, was %d", snap.SafetySystem)
	}

	seg.Do(ctx, func(s *carstate.CarState) bool {
		s.DoorObstruction = 0
		s.EmergencyStop = 1
		return true
	})
	snap = awaitState(t, seg, func(s carstate.CarState) bool { return s.EmergencyMode == 1 })
	if snap.EmergencyStop != 0 {
		t.Errorf("Emergency stop expected cleared, was %d", snap.EmergencyStop)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run expected nil on cancel, was %v", err)
	}
}

func TestMonitorEndsWhenSegmentCloses(t *testing.T) {
	seg := carstate.NewLocal(carstate.New(1))
	done := make(chan error, 1)
	go func() { done <- NewMonitor("A", seg).Run(context.Background()) }()

	awaitState(t, seg, func(s carstate.CarState) bool { return s.SafetySystem == carstate.HeartbeatAlive })
	seg.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("Run expected an error after the segment closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the segment closed")
	}
}

func TestMonitorOverAttachedSegment(t *testing.T) {
	initial := carstate.New(1)
	initial.Status = types.ST_Closing
	local := carstate.NewLocal(initial)

	srv, err := statesync.Create(filepath.Join(t.TempDir(), carstate.SegmentName("A")+".sock"), local, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	defer srv.Close()

	remote, err := statesync.Attach(ctx, srv.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer remote.Close()
	go NewMonitor("A", remote).Run(ctx)

	awaitState(t, local, func(s carstate.CarState) bool { return s.SafetySystem == carstate.HeartbeatAlive })
	local.Do(ctx, func(s *carstate.CarState) bool {
		s.DoorObstruction = 1
		return true
	})
	awaitState(t, local, func(s carstate.CarState) bool { return s.Status == types.ST_Opening })
}

func TestServiceResetAfterStopInEmergency(t *testing.T) {
	s := carstate.New(1)
	s.SafetySystem = carstate.HeartbeatAlive
	s.EmergencyMode = 1
	s.EmergencyStop = 1
	Inspect(&s)

	// service_on
	s.IndividualServiceMode = 1
	s.EmergencyMode = 0

	if _, findings := Inspect(&s); len(findings) != 0 || s.EmergencyMode != 0 {
		t.Errorf("Emergency expected to stay cleared after service reset, was %+v with %v", s, findings)
	}
}
