package delivery

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/allape/hypercap/grabber/frame"
	"github.com/allape/hypercap/grabber/wire"
)

type controller struct {
	listener net.Listener

	locker   sync.Mutex
	requests []*wire.Request
	accepted int
}

// newController answers every request with reply(connection index, request index),
// a nil reply closes the connection without answering
func newController(t *testing.T, reply func(conn, req int) *wire.Reply) *controller {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	c := &controller{listener: listener}
	t.Cleanup(func() {
		_ = listener.Close()
	})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			c.locker.Lock()
			index := c.accepted
			c.accepted++
			c.locker.Unlock()

			go c.serve(conn, index, reply)
		}
	}()

	return c
}

func (c *controller) serve(conn net.Conn, index int, reply func(conn, req int) *wire.Reply) {
	defer func() {
		_ = conn.Close()
	}()

	for i := 0; ; i++ {
		payload, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}
		req, err := wire.UnmarshalRequest(payload)
		if err != nil {
			return
		}

		c.locker.Lock()
		c.requests = append(c.requests, req)
		c.locker.Unlock()

		r := reply(index, i)
		if r == nil {
			return
		}
		if err := wire.WriteMessage(conn, r.Marshal()); err != nil {
			return
		}
	}
}

func (c *controller) Address() string {
	return c.listener.Addr().String()
}

func (c *controller) Requests() []*wire.Request {
	c.locker.Lock()
	defer c.locker.Unlock()
	return append([]*wire.Request(nil), c.requests...)
}

func (c *controller) Accepted() int {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.accepted
}

func ok(int, int) *wire.Reply {
	return &wire.Reply{Type: wire.ReplyTypeReply, Success: true}
}

func testFrame() *frame.Frame {
	f := frame.New(2, 2)
	for i := range f.Pix {
		f.Pix[i] = byte(i)
	}
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSend(t *testing.T) {
	server := newController(t, ok)

	client := NewClient(Target{Address: server.Address(), Timeout: time.Second, Duration: time.Second}, nil)
	defer func() {
		_ = client.Close()
	}()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := client.Send(context.Background(), testFrame(), 800); err != nil {
		t.Fatal(err)
	}

	requests := server.Requests()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(requests))
	}
	image := requests[0].Image
	if requests[0].Command != wire.CommandImage || image == nil {
		t.Fatalf("Expected image request, got %+v", requests[0])
	}
	if image.Priority != 800 || image.ImageWidth != 2 || image.ImageHeight != 2 || image.Duration != 1000 {
		t.Fatalf("unexpected image request: %+v", image)
	}
	if len(image.ImageData) != 12 || image.ImageData[11] != 11 {
		t.Fatalf("unexpected image data: %v", image.ImageData)
	}

	if stats := client.Stats(); stats.Sent != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendWithoutReplyNeverBlocks(t *testing.T) {
	server := newController(t, func(int, int) *wire.Reply {
		// never answer, keep the connection open
		select {}
	})

	client := NewClient(Target{Address: server.Address(), SkipReply: true, Timeout: 10 * time.Second}, nil)
	defer func() {
		_ = client.Close()
	}()

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 5; i++ {
			if err := client.Send(context.Background(), testFrame(), 100); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send blocked on a reply")
	}

	waitFor(t, func() bool {
		return len(server.Requests()) >= 1
	})
}

func TestSendReconnectsOnce(t *testing.T) {
	server := newController(t, func(conn, _ int) *wire.Reply {
		if conn == 0 {
			return nil
		}
		return ok(conn, 0)
	})

	client := NewClient(Target{Address: server.Address(), Timeout: time.Second}, nil)
	defer func() {
		_ = client.Close()
	}()

	f := testFrame()

	err := client.Send(context.Background(), f, 800)
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("Expected SendError, got %v", err)
	}
	if !se.Reconnected || se.Rejected {
		t.Fatalf("Expected reconnected send error, got %+v", se)
	}

	if err := client.Send(context.Background(), f, 800); err != nil {
		t.Fatalf("Expected retried send to succeed, got %v", err)
	}

	if server.Accepted() != 2 {
		t.Fatalf("Expected 2 connections, got %d", server.Accepted())
	}
	if stats := client.Stats(); stats.Sent != 1 || stats.Failed != 1 || stats.Reconnects != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRejectedKeepsConnection(t *testing.T) {
	server := newController(t, func(_, req int) *wire.Reply {
		if req == 0 {
			return &wire.Reply{Type: wire.ReplyTypeReply, Success: false, Error: "bad image"}
		}
		return ok(0, req)
	})

	client := NewClient(Target{Address: server.Address(), Timeout: time.Second}, nil)
	defer func() {
		_ = client.Close()
	}()

	err := client.Send(context.Background(), testFrame(), 800)
	var se *SendError
	if !errors.As(err, &se) || !se.Rejected {
		t.Fatalf("Expected rejected SendError, got %v", err)
	}
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Expected ErrRejected, got %v", err)
	}

	if err := client.Clear(context.Background(), 800); err != nil {
		t.Fatal(err)
	}
	if server.Accepted() != 1 {
		t.Fatalf("Expected 1 connection, got %d", server.Accepted())
	}

	requests := server.Requests()
	if len(requests) != 2 || requests[1].Command != wire.CommandClear || requests[1].Clear.Priority != 800 {
		t.Fatalf("unexpected requests: %+v", requests)
	}
}

func TestConnectError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	address := listener.Addr().String()
	_ = listener.Close()

	client := NewClient(Target{Address: address, Timeout: time.Second}, nil)

	err = client.Connect(context.Background())
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected ConnectError, got %v", err)
	}
	if ce.Address != address {
		t.Fatalf("Expected %s, got %s", address, ce.Address)
	}

	err = client.Send(context.Background(), testFrame(), 800)
	var se *SendError
	if !errors.As(err, &se) || !errors.As(err, &ce) {
		t.Fatalf("Expected SendError wrapping ConnectError, got %v", err)
	}
}

func TestInvalidFrameIsNotSent(t *testing.T) {
	client := NewClient(Target{Address: "127.0.0.1:1"}, func(context.Context, string, time.Duration) (io.ReadWriteCloser, error) {
		t.Fatal("dialed for an invalid frame")
		return nil, nil
	})

	f := testFrame()
	f.Pix = f.Pix[:5]
	if err := client.Send(context.Background(), f, 800); err == nil {
		t.Fatal("Expected error for a short frame")
	}
}

func TestColor(t *testing.T) {
	server := newController(t, ok)
	client := NewClient(Target{Address: server.Address(), Timeout: time.Second}, nil)
	defer func() {
		_ = client.Close()
	}()

	if err := client.Color(context.Background(), 0xff00ff80, 50, 0); err != nil {
		t.Fatal(err)
	}

	requests := server.Requests()
	if len(requests) != 1 || requests[0].Color == nil {
		t.Fatalf("Expected color request, got %+v", requests)
	}
	if requests[0].Color.RgbColor != 0x00ff80 || requests[0].Color.Priority != 50 {
		t.Fatalf("unexpected color request: %+v", requests[0].Color)
	}
}

func TestParseSerialAddress(t *testing.T) {
	name, baud, err := ParseSerialAddress("serial:///dev/ttyUSB0?baud=9600")
	if err != nil {
		t.Fatal(err)
	}
	if name != "/dev/ttyUSB0" || baud != 9600 {
		t.Fatalf("Expected /dev/ttyUSB0 9600, got %s %d", name, baud)
	}

	_, baud, err = ParseSerialAddress("serial:///dev/ttyACM0")
	if err != nil {
		t.Fatal(err)
	}
	if baud != DefaultBaud {
		t.Fatalf("Expected %d, got %d", DefaultBaud, baud)
	}

	if _, _, err := ParseSerialAddress("serial:///dev/ttyACM0?baud=abc"); err == nil {
		t.Fatal("Expected error for invalid baud")
	}
	if _, _, err := ParseSerialAddress("tcp://127.0.0.1:19445"); err == nil {
		t.Fatal("Expected error for a non serial address")
	}
}

func TestDefaultPriority(t *testing.T) {
	client := NewClient(Target{Address: "127.0.0.1:19445"}, nil)
	if client.Target.Priority != DefaultPriority {
		t.Fatalf("Expected %d, got %d", DefaultPriority, client.Target.Priority)
	}

	client = NewClient(Target{Address: "127.0.0.1:19445", Priority: 100}, nil)
	if client.Target.Priority != 100 {
		t.Fatalf("Expected 100, got %d", client.Target.Priority)
	}
}
