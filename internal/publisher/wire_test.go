package publisher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWireFormatRoundTrip(t *testing.T) {
	frame := EncodeWireFormat(258, []byte(`{"a":1}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2}, frame[:5])

	id, payload, err := DecodeWireFormat(frame)
	require.NoError(t, err)
	require.Equal(t, 258, id)
	require.Equal(t, `{"a":1}`, string(payload))
}

func TestDecodeWireFormatRejectsPlainJSON(t *testing.T) {
	_, _, err := DecodeWireFormat([]byte(`{"id":"x"}`))
	require.ErrorIs(t, err, ErrNotFramed)

	_, _, err = DecodeWireFormat([]byte{0, 1})
	require.ErrorIs(t, err, ErrNotFramed)
}
