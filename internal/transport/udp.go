package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

var (
	// ErrSendBlocked means the socket did not accept a datagram within the send deadline.
	// The capture path has no queue to absorb this, so callers treat it as fatal.
	ErrSendBlocked = errors.New("send blocked past deadline")
	// ErrClosed is returned by operations on a closed Conn
	ErrClosed = errors.New("transport closed")
)

// DefaultPollInterval bounds how long Receive waits before re-checking its context
const DefaultPollInterval = 250 * time.Millisecond

// Options tune the socket underneath a Conn
type Options struct {
	SocketBuffer int           // SO_SNDBUF / SO_RCVBUF in bytes, 0 keeps the OS default
	DSCP         int           // differentiated services code point, 0 leaves packets unmarked
	SendTimeout  time.Duration // per-datagram write deadline
	PollInterval time.Duration // receive deadline between context checks
}

// Conn is one UDP endpoint. A sender Conn is connected to its target; a receiver Conn
// accepts datagrams from anyone.
type Conn struct {
	conn    *net.UDPConn
	opts    Options
	logger  *slog.Logger
	closed  atomic.Bool
	readBuf []byte
}

// Dial opens a sender socket targeting addr
func Dial(ctx context.Context, addr string, opts Options, logger *slog.Logger) (*Conn, error) {
	var dialer net.Dialer
	nc, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP %s: %w", addr, err)
	}

	c := newConn(nc.(*net.UDPConn), opts, logger)
	if c.opts.SocketBuffer > 0 {
		if err := c.conn.SetWriteBuffer(c.opts.SocketBuffer); err != nil {
			c.logger.Warn("Failed to set UDP write buffer size",
				slog.Int("buffer_size", c.opts.SocketBuffer),
				slog.String("error", err.Error()),
			)
		}
	}
	c.markDSCP()

	c.logger.Info("UDP sender socket ready",
		slog.String("local_address", c.conn.LocalAddr().String()),
		slog.String("remote_address", addr),
	)
	return c, nil
}

// Listen opens a receiver socket bound to addr. A bind failure is fatal for the caller.
func Listen(ctx context.Context, addr string, opts Options, logger *slog.Logger) (*Conn, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP %s: %w", addr, err)
	}

	c := newConn(pc.(*net.UDPConn), opts, logger)
	if c.opts.SocketBuffer > 0 {
		if err := c.conn.SetReadBuffer(c.opts.SocketBuffer); err != nil {
			c.logger.Warn("Failed to set UDP read buffer size",
				slog.Int("buffer_size", c.opts.SocketBuffer),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Info("UDP receiver socket listening",
		slog.String("address", c.conn.LocalAddr().String()),
		slog.Int("buffer_size", c.opts.SocketBuffer),
	)
	return c, nil
}

func newConn(conn *net.UDPConn, opts Options, logger *slog.Logger) *Conn {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 50 * time.Millisecond
	}
	return &Conn{
		conn:    conn,
		opts:    opts,
		logger:  logger,
		readBuf: make([]byte, 65536),
	}
}

// markDSCP sets the traffic class so routers may prioritise audio datagrams
func (c *Conn) markDSCP() {
	if c.opts.DSCP == 0 {
		return
	}

	tos := c.opts.DSCP << 2
	var err error
	if addr, ok := c.conn.LocalAddr().(*net.UDPAddr); ok && addr.IP.To4() == nil {
		err = ipv6.NewConn(c.conn).SetTrafficClass(tos)
	} else {
		err = ipv4.NewConn(c.conn).SetTOS(tos)
	}
	if err != nil {
		c.logger.Warn("Failed to set DSCP marking",
			slog.Int("dscp", c.opts.DSCP),
			slog.String("error", err.Error()),
		)
	}
}

// Send hands one datagram to the network without waiting for delivery. It never retries.
// A write that cannot complete within the send deadline returns ErrSendBlocked.
func (c *Conn) Send(datagram []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.SendTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if _, err := c.conn.Write(datagram); err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return fmt.Errorf("%w (%v)", ErrSendBlocked, c.opts.SendTimeout)
		}
		if c.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("failed to send datagram: %w", err)
	}
	return nil
}

// Receive blocks until one datagram arrives and returns its payload. The returned slice
// is only valid until the next call. It returns ctx.Err() once ctx is done and ErrClosed
// after Close.
func (c *Conn) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		if c.closed.Load() {
			return nil, nil, ErrClosed
		}

		// Set read deadline to check for context cancellation periodically
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PollInterval)); err != nil {
			return nil, nil, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, remoteAddr, err := c.conn.ReadFromUDP(c.readBuf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if c.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil, nil, ErrClosed
			}
			return nil, nil, fmt.Errorf("failed to read UDP datagram: %w", err)
		}

		return c.readBuf[:n], remoteAddr, nil
	}
}

// LocalAddr returns the bound address
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close releases the socket; a blocked Receive returns ErrClosed
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
