package serializer

import "encoding/json"

// JSON is the default Serializer: a thin encoding/json wrapper, adapted
// to operate on arbitrary values rather than just RPCMessage.
type JSON struct{}

func (JSON) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Deserialize(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

func (JSON) ContentType() string { return "application/json" }
