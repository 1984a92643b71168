package regexblock

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanBufferFindsOneBlock(t *testing.T) {
	// "AA" + "<roblox>DATA</roblox>" + "ZZ"
	dump := []byte("AA<roblox>DATA</roblox>ZZ")
	s, err := New("", "")
	require.NoError(t, err)

	findings := s.ScanBuffer(dump, 0x1000, 0, "sec")
	require.Len(t, findings, 1)

	want := dump[2:23]
	sum := md5.Sum(want)
	require.Equal(t, uint64(2), findings[0].Result.PAddr)
	require.Equal(t, uint64(21), findings[0].Result.Size)
	require.Equal(t, uint64(0x1002), findings[0].Result.VAddr)
	require.Equal(t, hex.EncodeToString(sum[:]), findings[0].Result.Digest)
}

func TestScanBufferOverlappingStartTags(t *testing.T) {
	dump := []byte("<roblox><roblox>X</roblox>")
	s, err := New("", "")
	require.NoError(t, err)

	findings := s.ScanBuffer(dump, 0, 0, "sec")
	require.Len(t, findings, 2)

	// The scanner advances by start_match.end (7: the default start pattern
	// matches "<roblox" without its closing '>'), not past the end marker,
	// so the second finding's start tag is nested inside the first's span.
	require.Equal(t, uint64(0), findings[0].Result.PAddr)
	require.Equal(t, uint64(8), findings[1].Result.PAddr)
	require.Equal(t, findings[0].Result.PAddr+findings[0].Result.Size, uint64(len(dump)))
	require.Equal(t, findings[1].Result.PAddr+findings[1].Result.Size, uint64(len(dump)))
}

func TestScanBufferDanglingStartIsDropped(t *testing.T) {
	dump := []byte("junk <roblox>unterminated")
	s, err := New("", "")
	require.NoError(t, err)

	findings := s.ScanBuffer(dump, 0, 0, "sec")
	require.Empty(t, findings)
}

func TestScanBufferEndBeforeStartNeverConsidered(t *testing.T) {
	dump := []byte("</roblox>junk<roblox>still unterminated")
	s, err := New("", "")
	require.NoError(t, err)

	findings := s.ScanBuffer(dump, 0, 0, "sec")
	require.Empty(t, findings)
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := New("(unterminated", "")
	require.Error(t, err)
}
