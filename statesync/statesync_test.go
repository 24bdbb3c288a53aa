package statesync

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"liftctl/carstate"
	"liftctl/types"
	"liftctl/wire"
)

func TestSerializeDeserialize(t *testing.T) {
	inputs := []carstate.CarState{
		carstate.New(1),
		carstate.New(-99),
		{
			CurrentFloor:          -1,
			DestinationFloor:      999,
			Status:                types.ST_Between,
			OpenButton:            1,
			SafetySystem:          carstate.HeartbeatSeen,
			IndividualServiceMode: 1,
			EmergencyMode:         1,
		},
		{
			// corrupted records must survive the trip unchanged
			CurrentFloor: 0,
			Status:       types.DoorStatus(42),
			Overload:     7,
		},
	}

	for _, input := range inputs {
		serialized := serialize(input)
		deserialized, err := deserialize(strings.Fields(serialized))
		if err != nil {
			t.Fatalf("deserialize(%q) failed: %v", serialized, err)
		}
		if !reflect.DeepEqual(input, deserialized) {
			t.Errorf("Deserialized `CarState` does not match original.\nOriginal: %+v\nDeserialized: %+v", input, deserialized)
		}
	}
}

func TestDeserializeRejects(t *testing.T) {
	bad := [][]string{
		{"0", "1"},
		{"0", "1", "1", "0", "0", "0", "0", "0", "0", "0", "x"},
		{"0", "1", "1", "0", "0", "0", "0", "0", "0", "0", "300"},
	}
	for _, fields := range bad {
		if _, err := deserialize(fields); err == nil {
			t.Errorf("deserialize(%v) expected error", fields)
		}
	}
}

func startServer(t *testing.T, seg *carstate.Local) (string, context.CancelFunc) {
	t.Helper()
	path := filepath.Join(t.TempDir(), carstate.SegmentName("Test")+".sock")
	srv, err := Create(path, seg, time.Second)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return path, cancel
}

func TestRemoteDoCommitsAndBroadcasts(t *testing.T) {
	local := carstate.NewLocal(carstate.New(1))
	path, _ := startServer(t, local)

	remote, err := Attach(context.Background(), path)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer remote.Close()

	woken := make(chan uint64, 1)
	go func() {
		gen, _ := local.Wait(context.Background(), 0, 2*time.Second)
		woken <- gen
	}()

	gen, err := remote.Do(context.Background(), func(s *carstate.CarState) bool {
		s.OpenButton = 1
		return true
	})
	if err != nil || gen != 1 {
		t.Fatalf("remote Do returned %d, %v", gen, err)
	}
	if g := <-woken; g != 1 {
		t.Errorf("Local waiter expected generation 1, was %d", g)
	}

	snap, _, _ := carstate.Snapshot(context.Background(), local)
	if snap.OpenButton != 1 {
		t.Errorf("Remote change not visible locally: %+v", snap)
	}
}

func TestRemoteDoWithoutChangeKeepsGeneration(t *testing.T) {
	local := carstate.NewLocal(carstate.New(3))
	path, _ := startServer(t, local)
	remote, err := Attach(context.Background(), path)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer remote.Close()

	var seen carstate.CarState
	gen, err := remote.Do(context.Background(), func(s *carstate.CarState) bool {
		seen = *s
		s.Overload = 1
		return false
	})
	if err != nil || gen != 0 {
		t.Errorf("remote Do returned %d, %v", gen, err)
	}
	if seen.CurrentFloor != 3 {
		t.Errorf("Remote view not as expected: %+v", seen)
	}
	snap, _, _ := carstate.Snapshot(context.Background(), local)
	if snap.Overload != 0 {
		t.Errorf("Uncommitted remote change leaked into the segment")
	}
}

func TestRemoteWait(t *testing.T) {
	local := carstate.NewLocal(carstate.New(1))
	path, _ := startServer(t, local)
	remote, err := Attach(context.Background(), path)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer remote.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		local.Do(context.Background(), func(s *carstate.CarState) bool {
			s.EmergencyStop = 1
			return true
		})
	}()

	gen, err := remote.Wait(context.Background(), 0, 0)
	if err != nil || gen != 1 {
		t.Errorf("remote Wait returned %d, %v", gen, err)
	}

	start := time.Now()
	gen, err = remote.Wait(context.Background(), gen, 30*time.Millisecond)
	if err != nil || gen != 1 {
		t.Errorf("timed remote Wait returned %d, %v", gen, err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Errorf("timed remote Wait returned early")
	}
}

func TestRemoteWaitCancelled(t *testing.T) {
	local := carstate.NewLocal(carstate.New(1))
	path, _ := startServer(t, local)
	remote, err := Attach(context.Background(), path)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer remote.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := remote.Wait(ctx, 0, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cancelled Wait expected DeadlineExceeded, was %v", err)
	}
}

func TestLockReleasedWhenClientVanishes(t *testing.T) {
	local := carstate.NewLocal(carstate.New(1))
	path, _ := startServer(t, local)
	remote, err := Attach(context.Background(), path)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	locked := make(chan struct{})
	go remote.Do(context.Background(), func(s *carstate.CarState) bool {
		close(locked)
		remote.conn.Close()
		return true
	})
	<-locked

	done := make(chan struct{})
	go func() {
		local.Do(context.Background(), func(s *carstate.CarState) bool { return false })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("segment lock not released after client disconnect")
	}
}

func TestAttachWithoutCar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carGhost.sock")
	if _, err := Attach(context.Background(), path); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Attach expected ErrNotRunning, was %v", err)
	}
}

func TestCreateRejectsLiveSegmentAndReplacesStale(t *testing.T) {
	local := carstate.NewLocal(carstate.New(1))
	path, _ := startServer(t, local)

	if _, err := Create(path, carstate.NewLocal(carstate.New(1)), time.Second); !errors.Is(err, ErrInUse) {
		t.Errorf("Create on live segment expected ErrInUse, was %v", err)
	}

	stale := filepath.Join(t.TempDir(), "carStale.sock")
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	srv, err := Create(stale, carstate.NewLocal(carstate.New(1)), time.Second)
	if err != nil {
		t.Fatalf("Create over stale file failed: %v", err)
	}
	srv.Close()
	srv.Close()
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("segment expected removed after Close, stat returned %v", err)
	}
}

func TestWaitEndsWhenClientVanishes(t *testing.T) {
	local := carstate.NewLocal(carstate.New(1))
	srv, err := Create(filepath.Join(t.TempDir(), carstate.SegmentName("Test")+".sock"), local, time.Second)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	served := make(chan struct{})
	go func() {
		srv.Serve(context.Background())
		close(served)
	}()

	conn, err := net.Dial("unix", srv.Path())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if err := wire.WriteMessage(conn, "WAIT 0 0"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	conn.Close()

	srv.Close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatalf("untimed wait kept the session alive after the client left")
	}
}
