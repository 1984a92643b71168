// Package sections decodes the externally supplied section-description
// file (spec §6): a JSON array describing how ranges of a memory dump map
// onto the original process's virtual address space. This is the
// "external collaborator" the core AddressSpace constructor is deliberately
// decoupled from (see addrspace.New's doc comment), grounded on
// encoding/fasta.go's pattern of a small parsing package that hands a typed
// result to the core domain types, with the same pkg/errors wrapping style.
package sections

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/trumetaverse/luau-sifter/addrspace"
)

// entry is the on-wire shape of one section description: all integers
// decimal, exactly as spec §6 requires.
type entry struct {
	Name  string `json:"name"`
	Size  uint64 `json:"size"`
	VSize uint64 `json:"vsize"`
	Perm  string `json:"perm"`
	PAddr uint64 `json:"paddr"`
	VAddr uint64 `json:"vaddr"`
}

// Decode reads a top-level JSON array of section descriptions from r and
// converts it to addrspace.Section values. The input array need not be
// sorted — addrspace.New sorts internally by VAddrStart — but Decode
// returns them sorted too, so callers that want to log or display the
// layout before construction see it in address order.
func Decode(r io.Reader) ([]addrspace.Section, error) {
	var entries []entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "sections: malformed section description")
	}

	out := make([]addrspace.Section, len(entries))
	for i, e := range entries {
		out[i] = addrspace.Section{
			Name:       e.Name,
			Perm:       e.Perm,
			PAddrStart: e.PAddr,
			Size:       e.Size,
			VAddrStart: e.VAddr,
			VSize:      e.VSize,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VAddrStart < out[j].VAddrStart })
	return out, nil
}
