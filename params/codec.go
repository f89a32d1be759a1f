package params

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec defines the serialization contract for descriptors.
// Implementations encode/decode the ordered parameter list to/from bytes.
type Codec interface {
	// Encode serializes the ordered parameter list to bytes.
	Encode(pairs []Pair) ([]byte, error)

	// Decode deserializes bytes into the ordered parameter list.
	Decode(data []byte) ([]Pair, error)

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// CodecName constants for format selection.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// Get returns a codec by name. Defaults to msgpack.
func Get(name string) Codec {
	switch name {
	case CodecNameJSON:
		return &JSONCodec{}
	case CodecNameMsgpack, "":
		return &MsgpackCodec{}
	default:
		return &MsgpackCodec{}
	}
}

// JSONCodec encodes/decodes descriptors as JSON.
type JSONCodec struct{}

func (c *JSONCodec) Encode(pairs []Pair) ([]byte, error) {
	return json.Marshal(pairs)
}

func (c *JSONCodec) Decode(data []byte) ([]Pair, error) {
	var pairs []Pair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

func (c *JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes/decodes descriptors as MessagePack.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(pairs []Pair) ([]byte, error) {
	return msgpack.Marshal(pairs)
}

func (c *MsgpackCodec) Decode(data []byte) ([]Pair, error) {
	var pairs []Pair
	if err := msgpack.Unmarshal(data, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

func (c *MsgpackCodec) Name() string { return CodecNameMsgpack }
