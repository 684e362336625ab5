// Package serializer provides the payload (de)serialization contract
// consumed by the client and server engines: a pluggable codec
// generalized from encoding a whole wire message to operating on
// arbitrary Go values carried inside an already-framed
// message.Payload.
package serializer

// Serializer converts between a Go value and the bytes carried in an
// RPCMessage payload. Implementations must be safe for concurrent use —
// engines call Serialize/Deserialize from worker goroutines.
type Serializer interface {
	// Serialize encodes v into bytes.
	Serialize(v any) ([]byte, error)

	// Deserialize decodes data into a value of the same shape as the
	// zero value pointed to by out. out must be a non-nil pointer.
	Deserialize(data []byte, out any) error

	// ContentType names the wire encoding, e.g. "application/json", for
	// logging and future content negotiation.
	ContentType() string
}
