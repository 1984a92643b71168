package addrspace

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// Endian selects the byte order used by typed reads and by the page-header
// scanner's structured decode.
type Endian int

const (
	// LittleEndian selects little-endian decoding.
	LittleEndian Endian = iota
	// BigEndian selects big-endian decoding.
	BigEndian
)

func (e Endian) byteOrder() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

const (
	// PageSize is the fixed virtual page size the page index is built over.
	PageSize = 4096
	pageMask = ^uint64(PageSize - 1)
)

// AddressSpace owns the dump's byte view and the section map built from it.
// It is built once and is thereafter immutable: every scanner holds a
// shared read-only handle and calls only the accessors below, so the
// parallel driver never needs to synchronize access to it (spec §5,
// "AddressSpace: exclusively owned by the driver; every scanner holds a
// shared handle and calls only read accessors").
type AddressSpace struct {
	dump []byte

	sections []*Section // sorted by VAddrStart

	vTree intervalTree
	pTree intervalTree
	pages *pageIndex

	endian    Endian
	wordSize  int
	alignment uint64
}

// New builds an AddressSpace from an already-loaded dump byte view and a
// sectioning description. Loading the dump bytes themselves (from a local
// file, a memory-mapped view, or a remote object store) is the concern of
// the ingest/dumpsource package (spec §1's "raw file mapping/loading of the
// dump" external collaborator) — New only ever consumes the resulting
// slice, which keeps this constructor trivially testable against synthetic
// buffers (spec §8 testable properties).
func New(dump []byte, sections []Section, endian Endian, wordSize int) (*AddressSpace, error) {
	if wordSize != 4 && wordSize != 8 {
		return nil, errors.Errorf("addrspace: unsupported word size %d", wordSize)
	}
	as := &AddressSpace{
		dump:      dump,
		pages:     newPageIndex(),
		endian:    endian,
		wordSize:  wordSize,
		alignment: uint64(wordSize),
	}

	sorted := make([]*Section, len(sections))
	for i := range sections {
		sec := sections[i]
		sorted[i] = &sec
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VAddrStart < sorted[j].VAddrStart })
	as.sections = sorted

	for _, sec := range sorted {
		as.vTree.insert(sec.VAddrStart, sec)
		as.pTree.insert(sec.PAddrStart, sec)

		start := sec.VAddrStart & pageMask
		end := sec.VAddrEnd()
		if end == sec.VAddrStart {
			continue
		}
		for page := start; page < end; page += PageSize {
			as.pages.put(page, sec)
		}
	}

	return as, nil
}

// Endian returns the byte order this AddressSpace decodes with.
func (as *AddressSpace) Endian() Endian { return as.endian }

// WordSize returns the configured pointer/word width in bytes (4 or 8).
func (as *AddressSpace) WordSize() int { return as.wordSize }

// Alignment returns the required alignment, in bytes, of a candidate
// pointer value (defaults to WordSize).
func (as *AddressSpace) Alignment() uint64 { return as.alignment }

// Sections returns every section, ordered ascending by VAddrStart.
func (as *AddressSpace) Sections() []*Section { return as.sections }

// SectionOfV returns the Section containing virtual address v, if any.
func (as *AddressSpace) SectionOfV(v uint64) (*Section, bool) {
	sec := as.vTree.find(v, (*Section).containsV)
	return sec, sec != nil
}

// SectionOfP returns the Section containing physical address p, if any.
func (as *AddressSpace) SectionOfP(p uint64) (*Section, bool) {
	sec := as.pTree.find(p, (*Section).containsP)
	return sec, sec != nil
}

// VToP translates a virtual address to its physical counterpart, provided v
// lies inside some section: p = section.PAddrStart + (v - section.VAddrStart).
func (as *AddressSpace) VToP(v uint64) (p uint64, sec *Section, ok bool) {
	sec, ok = as.SectionOfV(v)
	if !ok {
		return 0, nil, false
	}
	return sec.PAddrStart + (v - sec.VAddrStart), sec, true
}

// PToV translates a physical address to its virtual counterpart.
func (as *AddressSpace) PToV(p uint64) (v uint64, sec *Section, ok bool) {
	sec, ok = as.SectionOfP(p)
	if !ok {
		return 0, nil, false
	}
	return sec.VAddrStart + (p - sec.PAddrStart), sec, true
}

// IsMappedV reports whether v's containing 4KiB page lies inside some
// section, via a page index lookup.
func (as *AddressSpace) IsMappedV(v uint64) bool {
	_, ok := as.pages.get(v & pageMask)
	return ok
}

// IsAlignedPointer reports whether v is both alignment-aligned and mapped —
// the test every pointer/page-header candidate must pass.
func (as *AddressSpace) IsAlignedPointer(v uint64) bool {
	return v%as.alignment == 0 && as.IsMappedV(v)
}

// SliceV returns the n physical bytes backing the virtual range [v, v+n),
// provided the entire range lies within one section.
func (as *AddressSpace) SliceV(v uint64, n uint64) ([]byte, bool) {
	sec, ok := as.SectionOfV(v)
	if !ok {
		return nil, false
	}
	end := sec.VAddrStart + sec.addressable()
	if v+n > end {
		return nil, false
	}
	p := sec.PAddrStart + (v - sec.VAddrStart)
	if p+n > uint64(len(as.dump)) {
		return nil, false
	}
	return as.dump[p : p+n], true
}

// ReadU8 reads a single byte at virtual address v.
func (as *AddressSpace) ReadU8(v uint64) (uint8, bool) {
	b, ok := as.SliceV(v, 1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

// ReadU16 reads a 16-bit value at v, honoring the AddressSpace's endian.
func (as *AddressSpace) ReadU16(v uint64) (uint16, bool) {
	b, ok := as.SliceV(v, 2)
	if !ok {
		return 0, false
	}
	return as.endian.byteOrder().Uint16(b), true
}

// ReadU32 reads a 32-bit value at v, honoring the AddressSpace's endian.
func (as *AddressSpace) ReadU32(v uint64) (uint32, bool) {
	b, ok := as.SliceV(v, 4)
	if !ok {
		return 0, false
	}
	return as.endian.byteOrder().Uint32(b), true
}

// ReadU64 reads a 64-bit value at v, honoring the AddressSpace's endian.
func (as *AddressSpace) ReadU64(v uint64) (uint64, bool) {
	b, ok := as.SliceV(v, 8)
	if !ok {
		return 0, false
	}
	return as.endian.byteOrder().Uint64(b), true
}

// ReadWord reads one word (WordSize bytes, zero-extended to uint64) at v.
func (as *AddressSpace) ReadWord(v uint64) (uint64, bool) {
	if as.wordSize == 4 {
		val, ok := as.ReadU32(v)
		return uint64(val), ok
	}
	return as.ReadU64(v)
}

// ByteOrder exposes the configured byte order for callers (e.g. the
// page-header scanner) that need to decode several adjacent fields from a
// single slice without repeated SliceV calls.
func (as *AddressSpace) ByteOrder() binary.ByteOrder { return as.endian.byteOrder() }

// Dump returns the full read-only dump byte view. Scanners use this only to
// hand a Section's backing bytes to per-region algorithms; it is never
// mutated after New returns.
func (as *AddressSpace) Dump() []byte { return as.dump }

// SectionBytes returns the raw dump bytes backing sec, i.e. the physical
// byte range [sec.PAddrStart, sec.PAddrStart+len), where len is the lesser
// of sec.Size and sec.VSize (spec §3's "common prefix" invariant).
func (as *AddressSpace) SectionBytes(sec *Section) []byte {
	n := sec.addressable()
	start := sec.PAddrStart
	end := start + n
	if end > uint64(len(as.dump)) {
		end = uint64(len(as.dump))
	}
	if start > end {
		return nil
	}
	return as.dump[start:end]
}
