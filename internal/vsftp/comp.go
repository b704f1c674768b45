package vsftp

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Compress snappy-encodes the whole buffer in one shot. Unlike
// std.CompStream's streaming snappy.Writer/Reader pair (grounded on
// for a long-lived net.Conn), a vsftp transfer is one bounded file, so
// there is nothing to stream: the entire body is already in memory
// before SendFile chunks it.
func Compress(body []byte) []byte {
	return snappy.Encode(nil, body)
}

// Decompress reverses Compress.
func Decompress(body []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, errors.Wrap(err, "vsftp: snappy decode")
	}
	return out, nil
}
