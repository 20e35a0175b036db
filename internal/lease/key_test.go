package lease

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLeaseKey_Valid(t *testing.T) {
	id, clientID, err := ParseLeaseKey("7.client-A")
	require.NoError(t, err)
	require.Equal(t, uint64(7), id)
	require.Equal(t, "client-A", clientID)
}

func TestParseLeaseKey_ClientIDWithDotIsRejected(t *testing.T) {
	// the cut rule is "exactly one dot" in the key as a whole, so a
	// client id containing a dot is rejected rather than mis-split -
	// this documents that lease keys and opaque client ids with dots
	// don't mix, which is the original's constraint too.
	_, _, err := ParseLeaseKey("7.client.A")
	require.Error(t, err)
}

func TestParseLeaseKey_Rejects(t *testing.T) {
	cases := []string{
		"",
		"7",
		".client-A",
		"7.",
		"abc.client-A",
		"-7.client-A",
	}
	for _, key := range cases {
		_, _, err := ParseLeaseKey(key)
		require.Errorf(t, err, "expected %q to be rejected", key)
	}
}

func TestMakeLeaseKey(t *testing.T) {
	require.Equal(t, "7.client-A", MakeLeaseKey(7, "client-A"))
}
