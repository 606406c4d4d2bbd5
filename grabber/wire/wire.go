// Package wire encodes the messages understood by a hyperion server:
// a 4 byte big endian length followed by a protobuf HyperionRequest,
// answered with a HyperionReply in the same framing.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

type Command int32

const (
	CommandColor      Command = 1
	CommandImage      Command = 2
	CommandClear      Command = 3
	CommandClearAll   Command = 4
	CommandServerInfo Command = 5
)

type ReplyType int32

const (
	ReplyTypeReply      ReplyType = 1
	ReplyTypeServerInfo ReplyType = 2
	ReplyTypeVideo      ReplyType = 3
)

// field numbers of HyperionRequest and its extensions
const (
	fieldCommand      protowire.Number = 1
	fieldColorRequest protowire.Number = 10
	fieldImageRequest protowire.Number = 11
	fieldClearRequest protowire.Number = 12
)

const MaxMessageSize = 64 << 20

var ErrMessageTooLarge = errors.New("message exceeds size limit")

type ImageRequest struct {
	Priority    int32
	ImageWidth  int32
	ImageHeight int32
	ImageData   []byte
	Duration    int32 // milliseconds, <= 0 for no timeout
}

type ColorRequest struct {
	Priority int32
	RgbColor int32 // 0x00RRGGBB
	Duration int32
}

type ClearRequest struct {
	Priority int32
}

type Reply struct {
	Type    ReplyType
	Success bool
	Error   string
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	// int32 is sign extended to 64 bits on the wire
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func request(command Command, extension protowire.Number, body []byte) []byte {
	var b []byte
	b = appendInt32(b, fieldCommand, int32(command))
	if body != nil {
		b = appendMessage(b, extension, body)
	}
	return b
}

func (r *ImageRequest) Marshal() []byte {
	var body []byte
	body = appendInt32(body, 1, r.Priority)
	body = appendInt32(body, 2, r.ImageWidth)
	body = appendInt32(body, 3, r.ImageHeight)
	body = protowire.AppendTag(body, 4, protowire.BytesType)
	body = protowire.AppendBytes(body, r.ImageData)
	if r.Duration > 0 {
		body = appendInt32(body, 5, r.Duration)
	}
	return request(CommandImage, fieldImageRequest, body)
}

func (r *ColorRequest) Marshal() []byte {
	var body []byte
	body = appendInt32(body, 1, r.Priority)
	body = appendInt32(body, 2, r.RgbColor)
	if r.Duration > 0 {
		body = appendInt32(body, 3, r.Duration)
	}
	return request(CommandColor, fieldColorRequest, body)
}

func (r *ClearRequest) Marshal() []byte {
	var body []byte
	body = appendInt32(body, 1, r.Priority)
	return request(CommandClear, fieldClearRequest, body)
}

func ClearAll() []byte {
	return request(CommandClearAll, 0, nil)
}

// Marshal is the controller side of the exchange, a grabber only decodes replies
func (r *Reply) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, int32(r.Type))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(r.Success))
	if r.Error != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, r.Error)
	}
	return b
}

// UnmarshalReply ignores unknown fields, a reply without the success field is an error
func UnmarshalReply(b []byte) (*Reply, error) {
	r := &Reply{}
	hasSuccess := false

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Type = ReplyType(int32(v))
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Success = protowire.DecodeBool(v)
			hasSuccess = true
			b = b[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Error = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}

	if !hasSuccess {
		return nil, errors.New("reply without success field")
	}

	return r, nil
}

// WriteMessage writes the length prefix and the payload in a single call
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	msg := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(msg, uint32(len(payload)))
	msg = append(msg, payload...)

	n, err := w.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return io.ErrShortWrite
	}
	return nil
}

func ReadMessage(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header)
	if size > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
