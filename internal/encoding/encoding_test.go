package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhred33RoundTrip(t *testing.T) {
	for raw := int(Phred33.Min); raw <= int(Phred33.Max); raw++ {
		internal, err := Phred33.Decode(byte(raw))
		require.NoError(t, err)
		require.Equal(t, byte(raw), Phred33.Encode(internal))
	}
}

func TestPhred64RoundTrip(t *testing.T) {
	for raw := int(Phred64.Min); raw <= int(Phred64.Max); raw++ {
		internal, err := Phred64.Decode(byte(raw))
		require.NoError(t, err)
		require.Equal(t, byte(raw), Phred64.Encode(internal))
	}
}

func TestDecodeRejectsOutOfRange(t *testing.T) {
	_, err := Phred33.Decode(32)
	require.Error(t, err)

	_, err = Phred64.Decode(200)
	require.Error(t, err)
}

func TestByName(t *testing.T) {
	enc, err := ByName("33")
	require.NoError(t, err)
	require.Same(t, Phred33, enc)

	_, err = ByName("bogus")
	require.Error(t, err)
}

func TestSolexaMonotonic(t *testing.T) {
	prev := byte(0)
	for raw := int(Solexa.Min); raw <= int(Solexa.Max); raw++ {
		internal, err := Solexa.Decode(byte(raw))
		require.NoError(t, err)
		require.GreaterOrEqual(t, internal, prev)
		prev = internal
	}
}
