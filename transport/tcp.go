package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// pollReadTimeout bounds each Poll's blocking read so a tcpSubscription
// behaves like a non-blocking poll to its caller: no data within the
// window means "0 fragments read", not an error, letting the caller's
// idle strategy decide whether to spin, sleep, or back off.
const pollReadTimeout = 20 * time.Millisecond

// tcpMagic identifies a frame as belonging to this binding, rejecting
// non-protocol connections (e.g. a stray HTTP client hitting the wrong
// port) before any length field is trusted.
var tcpMagic = [3]byte{'a', 'r', 'p'} // "aeron-rpc"

const tcpHeaderSize = 3 + 1 + 4 // magic + version + bodyLen

const tcpVersion = 1

// tcpPublication frames each Offer as magic|version|u32 length|body and
// writes it atomically under a mutex, so frames from concurrent callers
// sharing one connection never interleave mid-write.
type tcpPublication struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func newTCPPublication(conn net.Conn) *tcpPublication {
	return &tcpPublication{conn: conn}
}

func (p *tcpPublication) Offer(data []byte) (OfferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Closed, nil
	}

	header := make([]byte, tcpHeaderSize)
	copy(header[0:3], tcpMagic[:])
	header[3] = tcpVersion
	binary.BigEndian.PutUint32(header[4:8], uint32(len(data)))

	if _, err := p.conn.Write(header); err != nil {
		return Closed, err
	}
	if len(data) > 0 {
		if _, err := p.conn.Write(data); err != nil {
			return Closed, err
		}
	}
	// A plain net.Conn write either succeeds whole or errors; this
	// binding has no kernel-buffer-full signal to surface as
	// BackPressured, unlike a real Aeron publication's term-buffer
	// check. Higher layers still exercise the BackPressured path against
	// the in-process binding, which does model it.
	return Accepted, nil
}

func (p *tcpPublication) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

// tcpSubscription reads frames sequentially off one connection. Poll is
// only ever safe from one goroutine at a time — the same single-reader
// constraint any connection reader built on a shared bufio.Reader has.
type tcpSubscription struct {
	conn net.Conn
	r    *bufio.Reader
}

func newTCPSubscription(conn net.Conn) *tcpSubscription {
	return &tcpSubscription{conn: conn, r: bufio.NewReader(conn)}
}

func (s *tcpSubscription) Poll(handler FragmentHandler, fragmentLimit int) (int, error) {
	delivered := 0
	for delivered < fragmentLimit {
		data, err := s.readFrame()
		if err != nil {
			if isTimeout(err) {
				return delivered, nil
			}
			return delivered, err
		}
		handler(data)
		delivered++
	}
	return delivered, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// readFrame first waits, bounded by pollReadTimeout, for the frame's
// first byte to arrive — that's the only point where "nothing available
// yet" is a legitimate, timeout-reportable outcome. Once a byte has
// shown up the sender is mid-write, so the remaining header and body
// are read with no deadline: splitting a deadline across an
// already-started frame would desync framing permanently on a partial
// read, the one failure mode io.ReadFull can't recover from on a
// byte stream.
func (s *tcpSubscription) readFrame() ([]byte, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(pollReadTimeout))
	if _, err := s.r.Peek(1); err != nil {
		return nil, err
	}
	_ = s.conn.SetReadDeadline(time.Time{})

	header := make([]byte, tcpHeaderSize)
	if _, err := io.ReadFull(s.r, header); err != nil {
		return nil, err
	}
	if header[0] != tcpMagic[0] || header[1] != tcpMagic[1] || header[2] != tcpMagic[2] {
		return nil, fmt.Errorf("transport: bad frame magic %x", header[0:3])
	}
	if header[3] != tcpVersion {
		return nil, fmt.Errorf("transport: unsupported frame version %d", header[3])
	}
	bodyLen := binary.BigEndian.Uint32(header[4:8])
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(s.r, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (s *tcpSubscription) Close() error {
	return s.conn.Close()
}

// TCPDialer dials a plain TCP connection per Channel.Addr and wraps it
// as a Publication/Subscription pair sharing that one connection —
// request and reply frames interleave on the wire, distinguished only
// by the message codec's request_id, the same multiplexing model
// the client engine uses for the one publication/subscription pair it
// holds per endpoint.
type TCPDialer struct{}

func (TCPDialer) Dial(ctx context.Context, ch Channel) (Publication, Subscription, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", ch.Addr)
	if err != nil {
		return nil, nil, err
	}
	return newTCPPublication(conn), newTCPSubscription(conn), nil
}

// TCPListener accepts inbound TCP connections, each becoming one
// Publication/Subscription pair for the server engine.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP binds addr ("host:port", "" host means all interfaces).
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Accept() (Publication, Subscription, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, nil, err
	}
	return newTCPPublication(conn), newTCPSubscription(conn), nil
}

func (l *TCPListener) Close() error { return l.ln.Close() }

func (l *TCPListener) Addr() string { return l.ln.Addr().String() }
