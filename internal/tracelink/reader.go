package tracelink

import (
	"errors"
	"net"
	"time"
)

// errIdle reports a read timeout at a frame boundary with nothing consumed.
var errIdle = errors.New("tracelink: idle read")

// streamReader applies the receive timeout to every socket read. A timeout
// before the first byte of a frame surfaces as errIdle so the loop can check
// for cancellation. Once a frame has started, timeouts are retried until the
// frame completes, the socket fails, or cancellation has been requested; a
// frame is never abandoned half-read while the session is live.
type streamReader struct {
	conn    net.Conn
	timeout time.Duration
	stop    <-chan struct{}
	inFrame bool
}

func (r *streamReader) begin() {
	r.inFrame = false
}

func (r *streamReader) Read(p []byte) (int, error) {
	for {
		if r.timeout > 0 {
			_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
		}
		n, err := r.conn.Read(p)
		if n > 0 {
			r.inFrame = true
			return n, err
		}
		if err == nil {
			continue
		}
		if !isTimeout(err) {
			return 0, err
		}
		if !r.inFrame {
			return 0, errIdle
		}
		select {
		case <-r.stop:
			return 0, err
		default:
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
