package sections

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeSortsByVAddr(t *testing.T) {
	src := `[
		{"name": "b", "size": 16, "vsize": 16, "perm": "rw", "paddr": 16, "vaddr": 131072},
		{"name": "a", "size": 16, "vsize": 16, "perm": "r", "paddr": 0, "vaddr": 4096}
	]`

	secs, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, secs, 2)
	require.Equal(t, "a", secs[0].Name)
	require.Equal(t, "b", secs[1].Name)
	require.True(t, secs[0].VAddrStart < secs[1].VAddrStart)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode(strings.NewReader(`{not valid`))
	require.Error(t, err)
}
