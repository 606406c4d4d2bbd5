package frame

import (
	"context"
	"sync"
)

// Ring
// A fixed set of equally sized frame buffers. Get blocks while every buffer is held downstream.
type Ring struct {
	locker sync.Locker
	free   chan *Frame

	Width  int
	Height int
	Size   int
}

func NewRing(size, width, height int) *Ring {
	if size < 1 {
		size = 1
	}

	r := &Ring{
		locker: &sync.Mutex{},
		free:   make(chan *Frame, size),
		Width:  width,
		Height: height,
		Size:   size,
	}

	for i := 0; i < size; i++ {
		r.free <- New(width, height)
	}

	return r
}

func (r *Ring) Get(ctx context.Context) (*Frame, error) {
	select {
	case f := <-r.free:
		f.release = r.put
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryGet returns nil when no buffer is free
func (r *Ring) TryGet() *Frame {
	select {
	case f := <-r.free:
		f.release = r.put
		return f
	default:
		return nil
	}
}

func (r *Ring) Free() int {
	return len(r.free)
}

func (r *Ring) put(f *Frame) {
	r.locker.Lock()
	defer r.locker.Unlock()

	if f.Width != r.Width || f.Height != r.Height || len(f.Pix) != r.Width*r.Height*BytesPerPixel {
		return
	}

	select {
	case r.free <- f:
	default:
	}
}
