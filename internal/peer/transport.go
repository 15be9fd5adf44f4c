package peer

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	srverrors "github.com/bardlex/noso2m/pkg/errors"
	"github.com/bardlex/noso2m/pkg/log"
)

// TCPTransport dials a new IPv4 connection per request, writes the request
// and reads back one line. The whole exchange shares one deadline.
type TCPTransport struct {
	dialer net.Dialer
	logger *log.Logger
}

// NewTCPTransport creates a transport
func NewTCPTransport(logger *log.Logger) *TCPTransport {
	return &TCPTransport{
		logger: logger.WithComponent("transport"),
	}
}

// Execute implements Transport
func (t *TCPTransport) Execute(ctx context.Context, p Peer, timeout time.Duration, request string) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := t.dialer.DialContext(ctx, "tcp4", p.Addr())
	if err != nil {
		return "", classify(err, "dial", p)
	}
	t.logger.LogConnection("connected", p.Addr())
	defer func() {
		if err := conn.Close(); err != nil {
			t.logger.Debug("failed to close peer connection", "peer", p.String(), "error", err)
		}
	}()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", classify(err, "set_deadline", p)
		}
	}
	// shutdown interrupts a blocked read or write
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := io.WriteString(conn, request); err != nil {
		return "", classify(err, "send", p)
	}

	reader := getReader(conn)
	defer putReader(reader)

	line, err := reader.ReadString('\n')
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && len(line) > 0:
		// unterminated line followed by close
	case errors.Is(err, io.EOF):
		return "", srverrors.New(srverrors.ErrorTypeNetwork, "receive", "peer closed without a response").
			WithContext("peer", p.String())
	default:
		return "", classify(err, "receive", p)
	}
	t.logger.LogDuration("peer_exchange", time.Since(start))
	return line, nil
}

func classify(err error, op string, p Peer) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return srverrors.Wrap(err, srverrors.ErrorTypeTimeout, op, "peer timed out").
			WithContext("peer", p.String())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return srverrors.Wrap(err, srverrors.ErrorTypeTimeout, op, "peer timed out").
			WithContext("peer", p.String())
	}
	return srverrors.Wrap(err, srverrors.ErrorTypeNetwork, op, "peer connection failed").
		WithContext("peer", p.String())
}
