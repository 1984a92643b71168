// Package pointer implements the word-aligned pointer-field scanner (spec
// §4.4): for every aligned word of a writable region, test whether the
// value there targets another mapped region, and if so emit a finding
// carrying the sink's dereferenced word. The per-region "walk fixed-size
// records, classify, emit" shape is grounded on
// markduplicates.processShard, generalized from SAM records to raw words.
package pointer

import (
	"github.com/trumetaverse/luau-sifter/addrspace"
	"github.com/trumetaverse/luau-sifter/scan"
)

// Finding is one (SearchResult, Comment) pair the scanner produced.
type Finding struct {
	Result  scan.SearchResult
	Comment scan.PointerComment
}

// Scanner finds pointer-shaped words in a writable region.
type Scanner struct{}

// New returns a ready-to-use Scanner. It carries no state: all parameters
// live on the AddressSpace it is given.
func New() *Scanner { return &Scanner{} }

// ScanRegion walks every aligned word of sec's backing bytes and emits a
// Finding for each that looks like a pointer into mapped memory. Findings
// within the region are produced in ascending VAddr order, matching spec
// §4.4's ordering guarantee; a failed dereference of the sink word is not a
// scan failure — the finding is still emitted with an absent SinkValue.
func (s *Scanner) ScanRegion(as *addrspace.AddressSpace, sec *addrspace.Section) []Finding {
	b := as.SectionBytes(sec)
	w := uint64(as.WordSize())
	alignment := as.Alignment()

	var findings []Finding
	for pos := uint64(0); pos+w <= uint64(len(b)); pos += w {
		v := sec.VAddrStart + pos
		p := sec.PAddrStart + pos

		sink, ok := as.ReadWord(v)
		if !ok {
			continue
		}
		if sink%alignment != 0 {
			continue
		}
		if !as.IsMappedV(sink) {
			continue
		}

		var sinkPAddr, sinkVBase, sinkPBase uint64
		if sinkSec, ok := as.SectionOfV(sink); ok {
			sinkVBase = sinkSec.VAddrStart
			sinkPBase = sinkSec.PAddrStart
			sinkPAddr = sinkSec.PAddrStart + (sink - sinkSec.VAddrStart)
		}

		sinkValue := scan.NoAddr()
		if word, ok := as.ReadWord(sink); ok {
			sinkValue = scan.SomeAddr(word)
		}

		findings = append(findings, Finding{
			Result: scan.SearchResult{
				PAddr:       p,
				VAddr:       v,
				Size:        w,
				SectionName: sec.Name,
				Kind:        scan.KindPointer,
			},
			Comment: scan.PointerComment{
				VAddr:         scan.Addr(v),
				PAddr:         scan.Addr(p),
				VAddrBase:     scan.Addr(sec.VAddrStart),
				PAddrBase:     scan.Addr(sec.PAddrStart),
				SinkVAddr:     scan.Addr(sink),
				SinkPAddr:     scan.Addr(sinkPAddr),
				SinkVAddrBase: scan.Addr(sinkVBase),
				SinkPAddrBase: scan.Addr(sinkPBase),
				SinkValue:     sinkValue,
			},
		})
	}
	return findings
}
