// Package regexblock finds byte ranges delimited by a configurable
// start/end regular-expression pair (spec §4.3). No example repo in the
// retrieval pack compiles byte-oriented regular expressions — bioinformatics
// record formats are fixed-layout, not delimiter-scanned — so this scanner
// is built directly against the stdlib regexp package, which already gives
// byte-slice Find/FindIndex with the RE2 semantics the spec calls for.
package regexblock

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"

	"github.com/pkg/errors"
	"github.com/trumetaverse/luau-sifter/scan"
)

// DefaultStartPattern and DefaultEndPattern bound the tag the scanner looks
// for when the caller does not override them via --regex-start/--regex-end.
// These match spec §4.3 and original_source/luau-search/src/regexblock.rs
// literally, including the `(:?` prefix (an optional literal colon before
// the tag, not a `(?:` non-capturing group — a preserved quirk of the
// original tool, not a typo to silently "fix").
const (
	DefaultStartPattern = `(:?<roblox)`
	DefaultEndPattern   = `(:?</roblox>)`
)

// Scanner finds [start_match ... end_match] byte ranges in a buffer.
type Scanner struct {
	startPattern string
	endPattern   string
	startRE      *regexp.Regexp
	endRE        *regexp.Regexp
}

// New compiles the given start/end patterns. Either may be empty, in which
// case the corresponding default is used.
func New(startPattern, endPattern string) (*Scanner, error) {
	if startPattern == "" {
		startPattern = DefaultStartPattern
	}
	if endPattern == "" {
		endPattern = DefaultEndPattern
	}
	startRE, err := regexp.Compile(startPattern)
	if err != nil {
		return nil, errors.Wrap(err, "regexblock: invalid start pattern")
	}
	endRE, err := regexp.Compile(endPattern)
	if err != nil {
		return nil, errors.Wrap(err, "regexblock: invalid end pattern")
	}
	return &Scanner{
		startPattern: startPattern,
		endPattern:   endPattern,
		startRE:      startRE,
		endRE:        endRE,
	}, nil
}

// Finding is one (SearchResult, Comment) pair the scanner produced.
type Finding struct {
	Result  scan.SearchResult
	Comment scan.RegexComment
}

// ScanBuffer walks b from the start, alternating start/end matches per spec
// §4.3, emitting a Finding for every complete [start...end] range found.
// vBase and pBase are added to the byte offsets to produce the finding's
// virtual/physical addresses; pass 0 for both when scanning a raw dump
// offset stream rather than a section-relative buffer.
func (s *Scanner) ScanBuffer(b []byte, vBase, pBase uint64, sectionName string) []Finding {
	var findings []Finding
	pos := 0
	for pos < len(b) {
		ms := s.startRE.FindIndex(b[pos:])
		if ms == nil {
			break
		}
		startAbs := pos + ms[0]
		startMatchEnd := pos + ms[1]

		me := s.endRE.FindIndex(b[startMatchEnd:])
		if me == nil {
			// A start match with no end match is silently dropped (spec
			// §4.3 edge policy).
			break
		}
		endAbs := startMatchEnd + me[1]

		size := uint64(endAbs - startAbs)
		sum := md5.Sum(b[startAbs:endAbs])

		findings = append(findings, Finding{
			Result: scan.SearchResult{
				PAddr:       pBase + uint64(startAbs),
				VAddr:       vBase + uint64(startAbs),
				Size:        size,
				SectionName: sectionName,
				Digest:      hex.EncodeToString(sum[:]),
				Kind:        scan.KindRegex,
			},
			Comment: scan.RegexComment{
				StartPattern: s.startPattern,
				EndPattern:   s.endPattern,
				VAddr:        scan.Addr(vBase + uint64(startAbs)),
				PAddr:        scan.Addr(pBase + uint64(startAbs)),
			},
		})

		// Advance past the start match's end, not the whole range found, so
		// overlapping start markers (e.g. "<a><a></a>") are still
		// considered (spec §4.3 step 4).
		pos = startMatchEnd
	}
	return findings
}
