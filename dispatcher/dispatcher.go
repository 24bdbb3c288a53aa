package dispatcher

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"liftctl/assigner"
	"liftctl/wire"
)

const acceptBackoff = 50 * time.Millisecond

// Server accepts car registrations and call requests and assigns calls
// to cars.
type Server struct {
	addr         string
	writeTimeout time.Duration
	registry     *assigner.Registry

	mtx   sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(addr string, writeTimeout time.Duration) *Server {
	return &Server{
		addr:         addr,
		writeTimeout: writeTimeout,
		registry:     assigner.NewRegistry(),
		conns:        make(map[net.Conn]struct{}),
	}
}

func (s *Server) Registry() *assigner.Registry {
	return s.registry
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve handles every connection accepted on ln in its own goroutine until
// ctx is done. Failed accepts are logged and skipped.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	glog.Infof("Controller is listening on %s", ln.Addr())

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		s.closeAll()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return err
			}
			glog.Warningf("accept failed: %v", err)
			time.Sleep(acceptBackoff)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.conns, conn)
	conn.Close()
}

func (s *Server) closeAll() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

// handleConn lets the first message decide what the peer is: a call
// client gets one reply, a car keeps its connection.
func (s *Server) handleConn(conn net.Conn) {
	id := uuid.New()
	w := &peer{conn: conn, timeout: s.writeTimeout}
	glog.V(1).Infof("[%s] accepted connection from %s", id, conn.RemoteAddr())

	for {
		payload, err := wire.ReadMessage(conn)
		if errors.Is(err, wire.ErrOversized) {
			glog.Warningf("[%s] dropping oversized message", id)
			continue
		}
		if err != nil {
			if !wire.IsDisconnect(err) {
				glog.Warningf("[%s] read failed: %v", id, err)
			}
			return
		}
		glog.V(2).Infof("[%s] received %q", id, payload)

		msg, err := wire.Parse(payload)
		if err != nil {
			glog.Warningf("[%s] %v", id, err)
			w.Send(wire.Error(errorReply(payload)))
			return
		}

		switch msg.Kind {
		case wire.KindCall:
			s.handleCall(id, w, msg)
		case wire.KindRegister:
			s.handleCar(id, w, msg)
		default:
			glog.Warningf("[%s] unexpected first message %v", id, msg)
			w.Send(wire.Error(wire.ReplyUnknownCommand))
		}
		return
	}
}

func errorReply(payload string) string {
	if strings.HasPrefix(payload, "CALL") {
		return wire.ReplyInvalidCall
	}
	return wire.ReplyUnknownCommand
}

func (s *Server) handleCall(id uuid.UUID, w *peer, msg wire.Message) {
	glog.Infof("[%s] call from %v to %v", id, msg.Source, msg.Destination)
	if msg.Source == msg.Destination {
		w.Send(wire.Error(wire.ReplyInvalidCall))
		return
	}

	reply := wire.Unavailable
	if name, ok := s.registry.Assign(msg.Source, msg.Destination); ok {
		reply = wire.Assigned(name)
	}
	if err := w.Send(reply); err != nil {
		glog.Warningf("[%s] reply failed: %v", id, err)
	}
}

// handleCar serves a registered car until it disconnects.
func (s *Server) handleCar(id uuid.UUID, w *peer, reg wire.Message) {
	name := reg.Name
	glog.Infof("[%s] car %s registering", id, name)
	s.registry.Register(name, reg.Lowest, reg.Highest, w)
	defer s.registry.Deactivate(name, w)

	for {
		msg, err := wire.Receive(w.conn)
		switch {
		case err == nil:
		case errors.Is(err, wire.ErrOversized):
			glog.Warningf("[%s] car %s: dropping oversized message", id, name)
			continue
		case errors.Is(err, wire.ErrUnknownCommand), errors.Is(err, wire.ErrMalformed):
			glog.Warningf("[%s] car %s: %v", id, name, err)
			w.Send(wire.Error(wire.ReplyUnknownCommand))
			continue
		case wire.IsDisconnect(err):
			return
		default:
			glog.Warningf("[%s] car %s: read failed: %v", id, name, err)
			return
		}

		switch msg.Kind {
		case wire.KindStatus:
			glog.V(2).Infof("[%s] car %s: %v", id, name, msg)
			s.registry.UpdateStatus(name, w, msg.Status, msg.Current, msg.Destination)
		case wire.KindIndividualService, wire.KindEmergency:
			s.registry.ModeChange(name, w, msg.Kind)
		default:
			glog.Warningf("[%s] car %s: unexpected message %v", id, name, msg)
		}
	}
}

// peer serializes writes to one connection and bounds each of them.
type peer struct {
	mtx     sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

func (c *peer) Send(msg wire.Message) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return wire.Send(c.conn, msg)
}
