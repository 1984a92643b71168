package addrspace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func twoSectionDump() []byte {
	// Section A: vaddr=0x10000 size=16 paddr=0
	// Section B: vaddr=0x20000 size=16 paddr=16
	dump := make([]byte, 32)
	return dump
}

func TestVToPRoundTrip(t *testing.T) {
	dump := twoSectionDump()
	sections := []Section{
		{Name: "a", Perm: "rw", VAddrStart: 0x10000, VSize: 16, PAddrStart: 0, Size: 16},
		{Name: "b", Perm: "rw", VAddrStart: 0x20000, VSize: 16, PAddrStart: 16, Size: 16},
	}
	as, err := New(dump, sections, LittleEndian, 8)
	require.NoError(t, err)

	for _, sec := range sections {
		for k := uint64(0); k < sec.VSize; k++ {
			v := sec.VAddrStart + k
			p, got, ok := as.VToP(v)
			require.True(t, ok)
			require.Equal(t, sec.PAddrStart+k, p)
			require.Equal(t, sec.Name, got.Name)
		}
	}
}

func TestIsMappedVPageIndex(t *testing.T) {
	dump := twoSectionDump()
	sections := []Section{
		{Name: "a", Perm: "rw", VAddrStart: 0x10000, VSize: 16, PAddrStart: 0, Size: 16},
	}
	as, err := New(dump, sections, LittleEndian, 8)
	require.NoError(t, err)

	require.True(t, as.IsMappedV(0x10000))
	require.True(t, as.IsMappedV(0x10000+4000)) // same 4KiB page
	require.False(t, as.IsMappedV(0x20000))
}

func TestIsAlignedPointer(t *testing.T) {
	dump := twoSectionDump()
	sections := []Section{
		{Name: "a", Perm: "rw", VAddrStart: 0x10000, VSize: 16, PAddrStart: 0, Size: 16},
	}
	as, err := New(dump, sections, LittleEndian, 8)
	require.NoError(t, err)

	require.True(t, as.IsAlignedPointer(0x10000))
	require.False(t, as.IsAlignedPointer(0x10001)) // unaligned
	require.False(t, as.IsAlignedPointer(0x30000)) // unmapped
}

func TestReadWordLittleEndian(t *testing.T) {
	dump := make([]byte, 16)
	dump[0], dump[1], dump[2] = 0x00, 0x00, 0x02
	sections := []Section{
		{Name: "a", Perm: "rw", VAddrStart: 0x10000, VSize: 16, PAddrStart: 0, Size: 16},
	}
	as, err := New(dump, sections, LittleEndian, 8)
	require.NoError(t, err)

	word, ok := as.ReadWord(0x10000)
	require.True(t, ok)
	require.Equal(t, uint64(0x20000), word)
}

func TestReadWordCrossSectionFails(t *testing.T) {
	dump := make([]byte, 16)
	sections := []Section{
		{Name: "a", Perm: "rw", VAddrStart: 0x10000, VSize: 8, PAddrStart: 0, Size: 8},
	}
	as, err := New(dump, sections, LittleEndian, 8)
	require.NoError(t, err)

	// word_size=8 starting at the last byte of an 8-byte section: out of range.
	_, ok := as.ReadWord(0x10000 + 7)
	require.False(t, ok)
}

func TestSizeVsizeMismatchAddressableIsCommonPrefix(t *testing.T) {
	dump := make([]byte, 8)
	sections := []Section{
		{Name: "a", Perm: "rw", VAddrStart: 0x10000, VSize: 16, PAddrStart: 0, Size: 8},
	}
	as, err := New(dump, sections, LittleEndian, 4)
	require.NoError(t, err)

	_, _, ok := as.VToP(0x10000 + 8)
	require.False(t, ok, "beyond the common prefix must be unaddressable")
	_, _, ok = as.VToP(0x10000 + 7)
	require.True(t, ok)
}

func TestNewRejectsBadWordSize(t *testing.T) {
	_, err := New(nil, nil, LittleEndian, 3)
	require.Error(t, err)
}
