package pipe

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes a value of type T to bytes using msgpack encoding, the
// wire format Awaitable/Deferred results cross goroutine boundaries in when
// they need to travel further than process memory (e.g. a resource step
// checkpointing its cursor position).
func Encode[T any](value T) ([]byte, error) {
	return msgpack.Marshal(value)
}

// Decode deserializes bytes into a value of type T using msgpack decoding.
func Decode[T any](data []byte) (T, error) {
	var value T
	err := msgpack.Unmarshal(data, &value)
	return value, err
}
