package publisher

import (
	"encoding/binary"
	"errors"
)

const wireMagicByte = 0

// ErrNotFramed reports a payload without the Schema Registry wire header.
var ErrNotFramed = errors.New("payload is not schema registry framed")

// EncodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func EncodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = wireMagicByte
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// DecodeWireFormat strips Confluent framing and returns the schema id and the payload.
func DecodeWireFormat(frame []byte) (int, []byte, error) {
	if len(frame) < 5 || frame[0] != wireMagicByte {
		return 0, nil, ErrNotFramed
	}
	return int(binary.BigEndian.Uint32(frame[1:5])), frame[5:], nil
}
