package delivery

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	SerialScheme = "serial"
	DefaultBaud  = 115200
)

// SerialPort carries the same framing over a UART bridge, address looks like serial:///dev/ttyUSB0?baud=115200
type SerialPort struct {
	locker sync.Locker
	port   serial.Port

	Name string
	Baud int
}

func ParseSerialAddress(address string) (name string, baud int, err error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", 0, err
	}
	if u.Scheme != SerialScheme {
		return "", 0, fmt.Errorf("not a serial address: %s", address)
	}

	name = u.Path
	if name == "" {
		name = u.Opaque
	}
	if name == "" {
		return "", 0, fmt.Errorf("serial address without port name: %s", address)
	}

	baud = DefaultBaud
	if b := u.Query().Get("baud"); b != "" {
		baud, err = strconv.Atoi(b)
		if err != nil || baud <= 0 {
			return "", 0, fmt.Errorf("invalid baud rate: %s", b)
		}
	}

	return name, baud, nil
}

func OpenSerialPort(address string) (*SerialPort, error) {
	name, baud, err := ParseSerialAddress(address)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, err
	}

	return &SerialPort{
		locker: &sync.Mutex{},
		port:   port,
		Name:   name,
		Baud:   baud,
	}, nil
}

// Read reports a read timeout as os.ErrDeadlineExceeded, serial.Port returns 0, nil for that
func (p *SerialPort) Read(dst []byte) (int, error) {
	n, err := p.port.Read(dst)
	if n == 0 && err == nil && len(dst) > 0 {
		return 0, os.ErrDeadlineExceeded
	}
	return n, err
}

func (p *SerialPort) Write(src []byte) (int, error) {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.port.Write(src)
}

func (p *SerialPort) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		return p.port.SetReadTimeout(serial.NoTimeout)
	}
	timeout := time.Until(t)
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return p.port.SetReadTimeout(timeout)
}

func (p *SerialPort) Close() error {
	err := p.port.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
