// Package addrspace implements the virtual/physical address model used by
// the scan engine: a Section map built from an external sectioning
// description, plus the translation, mapped-pointer classification, and
// typed-read accessors every scanner consults.
package addrspace

import "strings"

// Section is one contiguous mapping between a range of the dump file and a
// range of the source process's virtual address space.
type Section struct {
	Name string
	Perm string

	PAddrStart uint64
	Size       uint64

	VAddrStart uint64
	VSize      uint64
}

// Writable reports whether the section's permission string marks it
// writable ("w" appears anywhere in Perm).
func (s *Section) Writable() bool {
	return strings.Contains(s.Perm, "w")
}

// addressable returns the size in bytes that is actually backed by dump
// bytes and reachable via virtual translation. size and vsize usually agree;
// when they don't, only the common prefix is addressable (spec §3).
func (s *Section) addressable() uint64 {
	if s.Size < s.VSize {
		return s.Size
	}
	return s.VSize
}

// PAddrEnd is the exclusive end of the section's physical range.
func (s *Section) PAddrEnd() uint64 { return s.PAddrStart + s.Size }

// VAddrEnd is the exclusive end of the section's virtual range.
func (s *Section) VAddrEnd() uint64 { return s.VAddrStart + s.VSize }

func (s *Section) containsV(v uint64) bool {
	end := s.VAddrStart + s.addressable()
	return v >= s.VAddrStart && v < end
}

func (s *Section) containsP(p uint64) bool {
	end := s.PAddrStart + s.addressable()
	return p >= s.PAddrStart && p < end
}
