// Package message defines the RPC wire message and its fixed binary
// framing — the envelope every request, response, error, and stream
// terminator is encoded into before being offered to a Publication, and
// decoded from after being delivered by a Subscription.
//
//	offset 0  : u64 request_id
//	offset 8  : u8  type
//	offset 9  : 3 bytes reserved (zero)
//	offset 12 : i32 service_name_len
//	offset 16 : service_name bytes
//	          : i32 method_name_len
//	          : method_name bytes
//	          : i32 payload_len
//	          : payload bytes
package message

import (
	"encoding/binary"
	"fmt"

	"aeronrpc/rpcerrors"
)

// Type distinguishes request, response, error, and stream-complete frames.
type Type uint8

const (
	TypeRequest  Type = 1
	TypeResponse Type = 2
	TypeError    Type = 3
	TypeComplete Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeRequest:
		return "REQUEST"
	case TypeResponse:
		return "RESPONSE"
	case TypeError:
		return "ERROR"
	case TypeComplete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

func validType(t uint8) bool {
	switch Type(t) {
	case TypeRequest, TypeResponse, TypeError, TypeComplete:
		return true
	default:
		return false
	}
}

const headerSize = 8 + 1 + 3 + 4 // request_id + type + reserved + service_name_len

// RPCMessage is the envelope for a single RPC request, response, error, or
// stream-complete frame.
//
//   - On REQUEST: ServiceName/MethodName identify the target, Payload is
//     the serialized argument.
//   - On RESPONSE: Payload is the serialized return value (unary, or one
//     value of a stream).
//   - On ERROR: Payload is a UTF-8 error description.
//   - On COMPLETE: Payload is empty; it only terminates a stream.
type RPCMessage struct {
	RequestID   uint64
	Type        Type
	ServiceName string
	MethodName  string
	Payload     []byte
}

// EncodedLen returns the exact number of bytes Encode will produce.
func (m *RPCMessage) EncodedLen() int {
	return headerSize + len(m.ServiceName) + 4 + len(m.MethodName) + 4 + len(m.Payload)
}

// Encode serializes m into a newly allocated buffer.
func Encode(m *RPCMessage) []byte {
	buf := make([]byte, m.EncodedLen())
	EncodeInto(m, buf)
	return buf
}

// EncodeInto writes m into buf, which must be at least m.EncodedLen()
// bytes long, and returns the number of bytes written. It avoids the
// extra allocation Encode performs when the caller already owns a
// scratch buffer sized to fit.
func EncodeInto(m *RPCMessage, buf []byte) int {
	binary.BigEndian.PutUint64(buf[0:8], m.RequestID)
	buf[8] = byte(m.Type)
	buf[9], buf[10], buf[11] = 0, 0, 0 // reserved, always written as zero

	offset := 12
	offset = putString(buf, offset, m.ServiceName)
	offset = putString(buf, offset, m.MethodName)
	offset = putBytes(buf, offset, m.Payload)
	return offset
}

func putString(buf []byte, offset int, s string) int {
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(s)))
	offset += 4
	copy(buf[offset:offset+len(s)], s)
	return offset + len(s)
}

func putBytes(buf []byte, offset int, b []byte) int {
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(b)))
	offset += 4
	copy(buf[offset:offset+len(b)], b)
	return offset + len(b)
}

// Decode parses a frame previously produced by Encode. It rejects any
// frame whose declared lengths would overrun the buffer, or whose type
// byte falls outside the closed set, with rpcerrors.ErrMalformedFrame —
// it never reads past the end of data.
func Decode(data []byte) (*RPCMessage, error) {
	if len(data) < headerSize {
		return nil, rpcerrors.ErrMalformedFrame
	}

	m := &RPCMessage{
		RequestID: binary.BigEndian.Uint64(data[0:8]),
		Type:      Type(data[8]),
	}
	if !validType(data[8]) {
		return nil, rpcerrors.ErrMalformedFrame
	}

	offset := 12
	service, offset, err := getString(data, offset)
	if err != nil {
		return nil, err
	}
	method, offset, err := getString(data, offset)
	if err != nil {
		return nil, err
	}
	payload, _, err := getBytes(data, offset)
	if err != nil {
		return nil, err
	}

	m.ServiceName = service
	m.MethodName = method
	// Independent copy: decouples the message's lifetime from the buffer
	// it was decoded out of, which for a real substrate binding is a
	// fragment buffer the transport may reuse.
	m.Payload = append([]byte(nil), payload...)
	return m, nil
}

func getString(data []byte, offset int) (string, int, error) {
	if offset+4 > len(data) {
		return "", 0, rpcerrors.ErrMalformedFrame
	}
	n := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if n < 0 || offset+n > len(data) {
		return "", 0, rpcerrors.ErrMalformedFrame
	}
	return string(data[offset : offset+n]), offset + n, nil
}

func getBytes(data []byte, offset int) ([]byte, int, error) {
	if offset+4 > len(data) {
		return nil, 0, rpcerrors.ErrMalformedFrame
	}
	n := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if n < 0 || offset+n > len(data) {
		return nil, 0, rpcerrors.ErrMalformedFrame
	}
	return data[offset : offset+n], offset + n, nil
}
