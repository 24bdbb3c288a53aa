package statesync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"liftctl/carstate"
	"liftctl/wire"
)

var ErrNotRunning = errors.New("car is not running")

// Remote is a segment attached from another process. It implements
// carstate.Segment; calls are serialized over one connection.
type Remote struct {
	mtx  sync.Mutex
	conn net.Conn
}

var _ carstate.Segment = (*Remote)(nil)

// Attach connects to the segment published at path.
func Attach(ctx context.Context, path string) (*Remote, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotRunning, path, err)
	}
	return &Remote{conn: conn}, nil
}

func (r *Remote) Do(ctx context.Context, fn func(s *carstate.CarState) bool) (uint64, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	stop := r.interruptOn(ctx)
	defer stop()

	if err := wire.WriteMessage(r.conn, cmdLock); err != nil {
		return 0, err
	}
	fields, err := r.expect(rplState)
	if err != nil {
		return 0, err
	}
	state, err := deserialize(fields)
	if err != nil {
		return 0, err
	}

	next := state
	if fn(&next) {
		err = wire.WriteMessage(r.conn, cmdCommit+" "+serialize(next))
	} else {
		err = wire.WriteMessage(r.conn, cmdUnlock)
	}
	if err != nil {
		return 0, err
	}
	return r.readGen()
}

func (r *Remote) Wait(ctx context.Context, gen uint64, timeout time.Duration) (uint64, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	stop := r.interruptOn(ctx)
	defer stop()

	ms := timeout.Milliseconds()
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	req := fmt.Sprintf("%s %d %d", cmdWait, gen, ms)
	if err := wire.WriteMessage(r.conn, req); err != nil {
		return gen, err
	}
	next, err := r.readGen()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return gen, ctxErr
		}
		return gen, err
	}
	return next, nil
}

func (r *Remote) Close() error {
	return r.conn.Close()
}

// interruptOn unblocks pending I/O once ctx is done.
func (r *Remote) interruptOn(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		r.conn.SetDeadline(time.Now())
	})
}

func (r *Remote) readGen() (uint64, error) {
	fields, err := r.expect(rplGen)
	if err != nil {
		return 0, err
	}
	if len(fields) != 1 {
		return 0, fmt.Errorf("malformed generation reply %q", fields)
	}
	return strconv.ParseUint(fields[0], 10, 64)
}

func (r *Remote) expect(reply string) ([]string, error) {
	payload, err := wire.ReadMessage(r.conn)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty reply, expected %s", reply)
	}
	switch fields[0] {
	case reply:
		return fields[1:], nil
	case rplError:
		text := strings.Join(fields[1:], " ")
		if text == carstate.ErrClosed.Error() {
			return nil, carstate.ErrClosed
		}
		return nil, errors.New(text)
	}
	return nil, fmt.Errorf("unexpected reply %q, expected %s", payload, reply)
}
