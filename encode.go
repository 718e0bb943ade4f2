package hosz

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode packs a stored record (a snapshot, an inspection list or a driver
// profile) as msgpack. Durations are written as compact integers.
func Encode[T any](value T) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("encode %T: %w", value, err)
	}
	return buf.Bytes(), nil
}

// Decode unpacks a record written by Encode. Times come back in the local
// zone; compare them with time.Time.Equal.
func Decode[T any](data []byte) (T, error) {
	var value T
	if err := msgpack.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("decode %T: %w", value, err)
	}
	return value, nil
}
