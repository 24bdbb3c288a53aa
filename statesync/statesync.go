package statesync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"liftctl/carstate"
	"liftctl/wire"
)

const (
	cmdLock   = "LOCK"
	cmdCommit = "COMMIT"
	cmdUnlock = "UNLOCK"
	cmdWait   = "WAIT"
	rplState  = "STATE"
	rplGen    = "GEN"
	rplError  = "ERROR"

	staleProbeTimeout = 100 * time.Millisecond
)

var ErrInUse = errors.New("segment already in use")

// Server publishes a car's Local segment on a unix socket so that other
// processes can attach to it by name.
type Server struct {
	path        string
	seg         *carstate.Local
	ln          *net.UnixListener
	lockTimeout time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Create claims the segment name at path. A socket still answered by
// another car is ErrInUse; a stale file is replaced.
func Create(path string, seg *carstate.Local, lockTimeout time.Duration) (*Server, error) {
	if _, err := os.Stat(path); err == nil {
		conn, err := net.DialTimeout("unix", path, staleProbeTimeout)
		if err == nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrInUse, path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing stale segment %s: %w", path, err)
		}
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("creating segment %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)

	return &Server{
		path:        path,
		seg:         seg,
		ln:          ln,
		lockTimeout: lockTimeout,
	}, nil
}

func (s *Server) Path() string {
	return s.path
}

// Serve accepts attachments until ctx is done or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := s.ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			glog.Warningf("segment %s: accept failed: %v", s.path, err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleSession(ctx, conn)
		}()
	}
}

// Close removes the named segment. Safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ln.Close()
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

func (s *Server) handleSession(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		payload, err := wire.ReadMessage(conn)
		if err != nil {
			if !wire.IsDisconnect(err) {
				glog.Warningf("segment %s: %v", s.path, err)
			}
			return
		}
		fields := strings.Fields(payload)
		if len(fields) == 0 {
			wire.WriteMessage(conn, rplError+" empty request")
			continue
		}

		switch fields[0] {
		case cmdLock:
			err = s.handleLock(ctx, conn)
		case cmdWait:
			err = s.handleWait(ctx, conn, fields[1:])
		default:
			err = wire.WriteMessage(conn, rplError+" unknown request "+fields[0])
		}
		if err != nil {
			if !wire.IsDisconnect(err) {
				glog.Warningf("segment %s: session ended: %v", s.path, err)
			}
			return
		}
	}
}

// handleLock holds the segment lock for the duration of one client
// transaction. Do releases it on every path, including a vanished client.
func (s *Server) handleLock(ctx context.Context, conn *net.UnixConn) error {
	var txErr error
	gen, err := s.seg.Do(ctx, func(state *carstate.CarState) bool {
		if txErr = wire.WriteMessage(conn, rplState+" "+serialize(*state)); txErr != nil {
			return false
		}
		if s.lockTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.lockTimeout))
			defer conn.SetReadDeadline(time.Time{})
		}
		var payload string
		if payload, txErr = wire.ReadMessage(conn); txErr != nil {
			return false
		}
		fields := strings.Fields(payload)
		switch {
		case len(fields) == 1 && fields[0] == cmdUnlock:
			return false
		case len(fields) > 0 && fields[0] == cmdCommit:
			next, err := deserialize(fields[1:])
			if err != nil {
				txErr = err
				return false
			}
			*state = next
			return true
		}
		txErr = fmt.Errorf("unexpected request while locked: %q", payload)
		return false
	})
	if txErr != nil {
		return txErr
	}
	if err != nil {
		return wire.WriteMessage(conn, rplError+" "+err.Error())
	}
	return wire.WriteMessage(conn, rplGen+" "+strconv.FormatUint(gen, 10))
}

func (s *Server) handleWait(ctx context.Context, conn *net.UnixConn, args []string) error {
	if len(args) != 2 {
		return wire.WriteMessage(conn, rplError+" malformed wait")
	}
	gen, err1 := strconv.ParseUint(args[0], 10, 64)
	ms, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil || ms < 0 {
		return wire.WriteMessage(conn, rplError+" malformed wait")
	}

	// a client only speaks again after the reply, so any read ends the wait
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gone := make(chan error, 1)
	go func() {
		var b [1]byte
		_, err := conn.Read(b[:])
		if err == nil {
			err = errors.New("request sent during wait")
		}
		gone <- err
		cancel()
	}()

	gen, err := s.seg.Wait(waitCtx, gen, time.Duration(ms)*time.Millisecond)

	conn.SetReadDeadline(time.Now())
	readErr := <-gone
	conn.SetReadDeadline(time.Time{})
	if !errors.Is(readErr, os.ErrDeadlineExceeded) {
		return readErr
	}
	if err != nil {
		return wire.WriteMessage(conn, rplError+" "+err.Error())
	}
	return wire.WriteMessage(conn, rplGen+" "+strconv.FormatUint(gen, 10))
}
