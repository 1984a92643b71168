package scan

import "github.com/trumetaverse/luau-sifter/addrspace"

// WritableRegions yields, in deterministic order by VAddrStart (the order
// AddressSpace.Sections already sorts by), every section whose permission
// string marks it writable. The driver splits this slice into contiguous
// runs, one per job, and writes each job's findings in job order, so the
// output order follows this slice whichever worker finishes first; a
// region's slice index is the key its checkpoint records it under.
func WritableRegions(as *addrspace.AddressSpace) []*addrspace.Section {
	var out []*addrspace.Section
	for _, sec := range as.Sections() {
		if sec.Writable() {
			out = append(out, sec)
		}
	}
	return out
}
