package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/grabber/frame"
	"github.com/allape/hypercap/grabber/wire"
)

var l = gogger.New("grabber.delivery")

const (
	DefaultPriority = 800
	DefaultTimeout  = 3 * time.Second
	DefaultDuration = time.Second
)

type Target struct {
	Address string
	// Priority is the channel callers send on unless they pick another one
	Priority  int32
	SkipReply bool
	Timeout   time.Duration
	// Duration is forwarded with every image, the controller drops the image after it
	Duration time.Duration
}

// Dialer opens the connection to the controller
type Dialer func(ctx context.Context, address string, timeout time.Duration) (io.ReadWriteCloser, error)

// Dial connects over tcp, or over a serial port for serial:// addresses
func Dial(ctx context.Context, address string, timeout time.Duration) (io.ReadWriteCloser, error) {
	if strings.HasPrefix(address, SerialScheme+"://") {
		return OpenSerialPort(address)
	}
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "tcp", address)
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type counters struct {
	sent       atomic.Uint64
	failed     atomic.Uint64
	rejected   atomic.Uint64
	reconnects atomic.Uint64
}

type Stats struct {
	Sent       uint64 `json:"sent"`
	Failed     uint64 `json:"failed"`
	Rejected   uint64 `json:"rejected"`
	Reconnects uint64 `json:"reconnects"`
}

// Client
// Owns one connection to the controller. Calls are serialized, a failed
// exchange closes the connection and dials once more before returning.
type Client struct {
	locker sync.Locker
	dial   Dialer
	conn   io.ReadWriteCloser
	stats  counters

	Target Target
}

func NewClient(target Target, dial Dialer) *Client {
	if target.Priority == 0 {
		target.Priority = DefaultPriority
	}
	if target.Timeout <= 0 {
		target.Timeout = DefaultTimeout
	}
	if dial == nil {
		dial = Dial
	}
	return &Client{
		locker: &sync.Mutex{},
		dial:   dial,
		Target: target,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	conn, err := c.dial(ctx, c.Target.Address, c.Target.Timeout)
	if err != nil {
		return &ConnectError{Address: c.Target.Address, Err: err}
	}
	c.conn = conn

	if c.Target.SkipReply {
		go drain(conn)
	}

	l.Info().Println("connected to", c.Target.Address)

	return nil
}

// drain consumes the replies nobody waits for, so the controller never blocks on a full socket
func drain(conn io.Reader) {
	for {
		payload, err := wire.ReadMessage(conn)
		if err != nil {
			l.Verbose().Println("reply drain stopped:", err)
			return
		}
		reply, err := wire.UnmarshalReply(payload)
		if err != nil {
			l.Warn().Println("invalid reply:", err)
			continue
		}
		if !reply.Success {
			l.Warn().Println("controller rejected message:", reply.Error)
		}
	}
}

func (c *Client) disconnect() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		l.Verbose().Println("close connection:", err)
	}
	c.conn = nil
}

func (c *Client) exchange(payload []byte) error {
	timeout := c.Target.Timeout

	if wd, ok := c.conn.(writeDeadliner); ok {
		_ = wd.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := wire.WriteMessage(c.conn, payload); err != nil {
		return err
	}

	if c.Target.SkipReply {
		return nil
	}

	if rd, ok := c.conn.(readDeadliner); ok {
		_ = rd.SetReadDeadline(time.Now().Add(timeout))
	}
	b, err := wire.ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	reply, err := wire.UnmarshalReply(b)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !reply.Success {
		return fmt.Errorf("%w: %s", ErrRejected, reply.Error)
	}

	return nil
}

func (c *Client) request(ctx context.Context, payload []byte) error {
	c.locker.Lock()
	defer c.locker.Unlock()

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			c.stats.failed.Add(1)
			return &SendError{Err: err}
		}
	}

	err := c.exchange(payload)
	if err == nil {
		c.stats.sent.Add(1)
		return nil
	}

	// the stream is still in sync after a failure acknowledgement
	if errors.Is(err, ErrRejected) {
		c.stats.rejected.Add(1)
		return &SendError{Err: err, Rejected: true}
	}

	c.stats.failed.Add(1)
	c.disconnect()

	l.Warn().Println("connection lost, reconnecting:", err)
	if cerr := c.connect(ctx); cerr != nil {
		l.Error().Println("reconnect:", cerr)
		return &SendError{Err: err}
	}
	c.stats.reconnects.Add(1)

	return &SendError{Err: err, Reconnected: true}
}

func (c *Client) duration() int32 {
	return int32(c.Target.Duration / time.Millisecond)
}

// Send delivers one frame, it must not be called concurrently with itself
func (c *Client) Send(ctx context.Context, f *frame.Frame, priority int32) error {
	if err := f.Validate(); err != nil {
		return err
	}

	return c.request(ctx, (&wire.ImageRequest{
		Priority:    priority,
		ImageWidth:  int32(f.Width),
		ImageHeight: int32(f.Height),
		ImageData:   f.Pix,
		Duration:    c.duration(),
	}).Marshal())
}

// Color sets a solid 0xRRGGBB color, duration <= 0 keeps it until cleared
func (c *Client) Color(ctx context.Context, rgb uint32, priority int32, duration time.Duration) error {
	return c.request(ctx, (&wire.ColorRequest{
		Priority: priority,
		RgbColor: int32(rgb & 0xffffff),
		Duration: int32(duration / time.Millisecond),
	}).Marshal())
}

func (c *Client) Clear(ctx context.Context, priority int32) error {
	return c.request(ctx, (&wire.ClearRequest{Priority: priority}).Marshal())
}

func (c *Client) ClearAll(ctx context.Context) error {
	return c.request(ctx, wire.ClearAll())
}

func (c *Client) Connected() bool {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.conn != nil
}

func (c *Client) Close() error {
	c.locker.Lock()
	defer c.locker.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) Stats() Stats {
	return Stats{
		Sent:       c.stats.sent.Load(),
		Failed:     c.stats.failed.Load(),
		Rejected:   c.stats.rejected.Load(),
		Reconnects: c.stats.reconnects.Load(),
	}
}
