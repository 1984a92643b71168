// Package luapage implements the page-header scanner (spec §4.5): scan for
// the allocator's literal page-size constant at word alignment, then walk
// backwards to a candidate header start and validate its pointer-shaped
// fields. The two header widths (x86 and x86-64) both decode into one
// width-independent header struct; the word size is taken from the
// AddressSpace, fixed at its construction, and decode branches on it for
// each pointer-width field rather than dispatching through an interface.
package luapage

import (
	"encoding/binary"

	"github.com/trumetaverse/luau-sifter/addrspace"
	"github.com/trumetaverse/luau-sifter/scan"
)

// PageConst is the allocator's fixed page_size field value. A word-aligned
// 32-bit value anywhere in a region that doesn't equal this constant can
// never be the page_size field of a real header, so it is the scanner's
// entry signature.
const PageConst int32 = 0x3FE8

// header is the decoded, width-independent view of an allocator page
// header. Both the 4-byte-pointer and 8-byte-pointer on-disk layouts decode
// into this shape; only the byte width of the pointer-valued fields differs
// between them.
type header struct {
	prev        uint64
	next        uint64
	gcoListPrev uint64
	gcoListNext uint64
	pageSize    int32
	blockSize   int32
	freeList    uint64
	freeNext    int32
	busyBlocks  int32
}

// headerSize is the decoded header's on-disk byte size for a given word
// size: four pointer-width fields, two int32 fields, one pointer-width
// field, two more int32 fields. Natural field alignment needs no padding in
// either word-size variant, so size = 4*word + 8 + word + 8 = 5*word + 16.
func headerSize(wordSize int) int {
	return 5*wordSize + 16
}

// offsetOfPageSize is the byte offset of the page_size field within the
// header: the four leading pointer-width fields (prev, next, gcolistprev,
// gcolistnext).
func offsetOfPageSize(wordSize int) int {
	return 4 * wordSize
}

// decode reads a header of the given word size from b, which must be at
// least headerSize(wordSize) bytes.
func decode(b []byte, order binary.ByteOrder, wordSize int) header {
	readWord := func(off int) uint64 {
		if wordSize == 4 {
			return uint64(order.Uint32(b[off:]))
		}
		return order.Uint64(b[off:])
	}

	var h header
	off := 0
	h.prev = readWord(off)
	off += wordSize
	h.next = readWord(off)
	off += wordSize
	h.gcoListPrev = readWord(off)
	off += wordSize
	h.gcoListNext = readWord(off)
	off += wordSize
	h.pageSize = int32(order.Uint32(b[off:]))
	off += 4
	h.blockSize = int32(order.Uint32(b[off:]))
	off += 4
	h.freeList = readWord(off)
	off += wordSize
	h.freeNext = int32(order.Uint32(b[off:]))
	off += 4
	h.busyBlocks = int32(order.Uint32(b[off:]))
	return h
}

// Options configures the header-validity constraints (spec §4.5's optional
// max_block_size filter).
type Options struct {
	MaxBlockSize *uint32
}

// Scanner finds allocator page headers in a writable region.
type Scanner struct {
	opts Options
}

// New returns a Scanner applying the given validity constraints.
func New(opts Options) *Scanner { return &Scanner{opts: opts} }

// Finding is one (SearchResult, Comment) pair the scanner produced.
type Finding struct {
	Result  scan.SearchResult
	Comment scan.PageComment
}

// isPointerField reports whether v is a valid value for one of the four
// linked-list pointer fields: either exactly zero (an empty link) or a
// word-aligned address mapped somewhere in the address space.
func isPointerField(as *addrspace.AddressSpace, v uint64) bool {
	return v == 0 || as.IsAlignedPointer(v)
}

func (s *Scanner) isValid(as *addrspace.AddressSpace, h header) bool {
	if h.pageSize != PageConst {
		return false
	}
	if !isPointerField(as, h.prev) || !isPointerField(as, h.next) ||
		!isPointerField(as, h.gcoListPrev) || !isPointerField(as, h.gcoListNext) {
		return false
	}
	if h.busyBlocks < 0 {
		return false
	}
	if s.opts.MaxBlockSize != nil && h.blockSize > int32(*s.opts.MaxBlockSize) {
		return false
	}
	return true
}

// ScanRegion walks every word-aligned 32-bit offset of sec's backing bytes
// looking for PageConst, then, for each hit, walks back by OFF bytes to a
// candidate header start and validates it. A header's finding size is not
// headerSize(wordSize)+page_size — it runs only from the header's start
// through the page_size field plus the page_size value itself
// (offsetOfPageSize+4, then the decoded page size), matching what the
// allocator actually attributes to the page.
func (s *Scanner) ScanRegion(as *addrspace.AddressSpace, sec *addrspace.Section) []Finding {
	b := as.SectionBytes(sec)
	w := as.WordSize()
	off := offsetOfPageSize(w)
	hdrSize := headerSize(w)
	order := as.ByteOrder()

	var findings []Finding
	for pos := 0; pos+4 <= len(b); pos += w {
		v32 := int32(order.Uint32(b[pos : pos+4]))
		if v32 != PageConst {
			continue
		}

		h := pos - off
		if h < 0 || h+hdrSize > len(b) {
			continue
		}

		hdr := decode(b[h:h+hdrSize], order, w)
		if !s.isValid(as, hdr) {
			continue
		}

		vaddr := sec.VAddrStart + uint64(h)
		paddr := sec.PAddrStart + uint64(h)
		size := uint64(off+4) + uint64(uint32(hdr.pageSize))

		findings = append(findings, Finding{
			Result: scan.SearchResult{
				PAddr:       paddr,
				VAddr:       vaddr,
				Size:        size,
				SectionName: sec.Name,
				Kind:        scan.KindPage,
			},
			Comment: scan.PageComment{
				VAddr:       scan.Addr(vaddr),
				PAddr:       scan.Addr(paddr),
				VAddrBase:   scan.Addr(sec.VAddrStart),
				PAddrBase:   scan.Addr(sec.PAddrStart),
				Prev:        scan.Addr(hdr.prev),
				Next:        scan.Addr(hdr.next),
				GCOListPrev: scan.Addr(hdr.gcoListPrev),
				GCOListNext: scan.Addr(hdr.gcoListNext),
				FreeList:    scan.Addr(hdr.freeList),
				BlockSize:   scan.Addr(uint32(hdr.blockSize)),
				PageSize:    scan.Addr(uint32(hdr.pageSize)),
				FreeNext:    scan.Addr(uint32(hdr.freeNext)),
				BusyBlocks:  scan.Addr(uint32(hdr.busyBlocks)),
			},
		})
	}
	return findings
}
