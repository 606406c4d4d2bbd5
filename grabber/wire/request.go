package wire

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// Request is a decoded HyperionRequest, only the extension matching Command is set
type Request struct {
	Command Command
	Image   *ImageRequest
	Color   *ColorRequest
	Clear   *ClearRequest
}

type field struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64
	bytes []byte
}

func fields(b []byte) ([]field, error) {
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		out = append(out, f)
	}
	return out, nil
}

// UnmarshalRequest is the controller side of the exchange, used by fake controllers in tests
// and by anything relaying requests
func UnmarshalRequest(b []byte) (*Request, error) {
	top, err := fields(b)
	if err != nil {
		return nil, err
	}

	r := &Request{}
	for _, f := range top {
		switch f.num {
		case fieldCommand:
			r.Command = Command(int32(f.value))
		case fieldImageRequest:
			sub, err := fields(f.bytes)
			if err != nil {
				return nil, err
			}
			r.Image = &ImageRequest{}
			for _, s := range sub {
				switch s.num {
				case 1:
					r.Image.Priority = int32(s.value)
				case 2:
					r.Image.ImageWidth = int32(s.value)
				case 3:
					r.Image.ImageHeight = int32(s.value)
				case 4:
					r.Image.ImageData = s.bytes
				case 5:
					r.Image.Duration = int32(s.value)
				}
			}
		case fieldColorRequest:
			sub, err := fields(f.bytes)
			if err != nil {
				return nil, err
			}
			r.Color = &ColorRequest{}
			for _, s := range sub {
				switch s.num {
				case 1:
					r.Color.Priority = int32(s.value)
				case 2:
					r.Color.RgbColor = int32(s.value)
				case 3:
					r.Color.Duration = int32(s.value)
				}
			}
		case fieldClearRequest:
			sub, err := fields(f.bytes)
			if err != nil {
				return nil, err
			}
			r.Clear = &ClearRequest{}
			for _, s := range sub {
				if s.num == 1 {
					r.Clear.Priority = int32(s.value)
				}
			}
		}
	}

	if r.Command == 0 {
		return nil, errors.New("request without command")
	}

	return r, nil
}
