package overlay

import (
	"context"
	"net"
	"strconv"
)

// Transport sends one request message to addr and returns its response.
// The production implementation (netTransport) dials a fresh TCP
// connection per call; overlaytest.FakeTransport replaces it in tests
// with an in-memory switch, so Node's retry/dedup/quorum logic can be
// exercised without real sockets.
type Transport interface {
	Send(ctx context.Context, addr string, req Message) (Message, error)
}

// netTransport is the production Transport: one TCP connection per
// request, framed per wire.go.
type netTransport struct {
	dialer net.Dialer
}

func NewNetTransport() Transport {
	return &netTransport{}
}

func (t *netTransport) Send(ctx context.Context, addr string, req Message) (Message, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Message{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := WriteMessage(conn, req); err != nil {
		return Message{}, err
	}
	return ReadMessage(conn)
}

// Listener accepts inbound connections and dispatches each to handle,
// the counterpart to netTransport on the serving side.
type Listener struct {
	ln net.Listener
}

func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

func (l *Listener) Addr() string { return l.ln.Addr().String() }
func (l *Listener) Close() error { return l.ln.Close() }

// Port reports the TCP port actually bound, resolving Config.Port == 0's
// ephemeral-port assignment for callers (mDNS registration, logging) that
// need a concrete number rather than a "host:port" string.
func (l *Listener) Port() int {
	_, portStr, err := net.SplitHostPort(l.ln.Addr().String())
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

// Serve accepts connections until Close is called, handing each to
// handle in its own goroutine. handle reads exactly one request and
// writes exactly one response, matching netTransport's one-shot
// connection model.
func (l *Listener) Serve(handle func(Message) Message) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			defer conn.Close()
			req, err := ReadMessage(conn)
			if err != nil {
				return
			}
			resp := handle(req)
			WriteMessage(conn, resp)
		}()
	}
}
