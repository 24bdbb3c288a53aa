package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// MaxMessageLen is the largest payload a receiver accepts.
const MaxMessageLen = 1023

var ErrOversized = errors.New("message exceeds maximum length")

// WriteMessage sends payload with its 16-bit big-endian length prefix in a
// single write.
func WriteMessage(w io.Writer, payload string) error {
	if len(payload) > MaxMessageLen {
		return fmt.Errorf("%w: %d bytes", ErrOversized, len(payload))
	}
	buf := make([]byte, 0, 2+len(payload))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one length-prefixed payload. An oversized frame is
// consumed and reported as ErrOversized so the stream stays aligned.
func ReadMessage(r io.Reader) (string, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(header[:]))
	if n > MaxMessageLen {
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %d bytes", ErrOversized, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(buf), nil
}

// IsDisconnect reports whether err means the peer is gone.
func IsDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
