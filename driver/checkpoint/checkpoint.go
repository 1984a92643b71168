// Package checkpoint persists and restores resumable run state for the
// parallel driver (a feature the original Rust tool lacked but that any
// long-running scan over a multi-gigabyte dump benefits from): which
// writable regions have already been fully scanned, so a restarted run can
// skip them. State is snappy-compressed on disk, grounded on
// encoding/bampair/disk_mate_shard.go's use of
// github.com/golang/snappy.NewBufferedWriter for exactly this kind of
// small, frequently-flushed side-state file; the record itself is encoded
// with encoding/gob rather than a hand-rolled wire format, since no
// generated-protobuf schema is available to this build.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"os"

	"blainsmith.com/go/seahash"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// State records which region indices have completed, keyed by a
// fingerprint of the run's inputs so a checkpoint from a different dump or
// section file is never mistakenly reused.
type State struct {
	Fingerprint uint64
	Completed   map[int]bool
}

// Fingerprint hashes the dump bytes and the sorted section layout into a
// single value identifying this run's inputs. seahash is used for its
// speed over the full dump — this runs once at startup, not per-candidate —
// grounded on the same "fast non-cryptographic hash gates an expensive
// path" role farm.Hash64WithSeed plays in addrspace's page index.
func Fingerprint(dump []byte, sectionLayout []byte) uint64 {
	h := seahash.New()
	h.Write(dump)
	h.Write(sectionLayout)
	return h.Sum64()
}

// Load reads a State from path. A missing file is not an error: it returns
// a fresh, empty State, since the very first run of a dump has no
// checkpoint yet.
func Load(path string, fingerprint uint64) (*State, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &State{Fingerprint: fingerprint, Completed: map[int]bool{}}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint: open %s", path)
	}
	defer f.Close()

	sr := snappy.NewReader(f)
	var st State
	if err := gob.NewDecoder(sr).Decode(&st); err != nil {
		return nil, errors.Wrapf(err, "checkpoint: decode %s", path)
	}
	if st.Fingerprint != fingerprint {
		// A checkpoint for a different dump/section pair must never be
		// applied to this run — start clean instead of silently skipping
		// regions that were never actually scanned.
		return &State{Fingerprint: fingerprint, Completed: map[int]bool{}}, nil
	}
	return &st, nil
}

// Save writes st to path, overwriting any existing checkpoint.
func Save(path string, st *State) error {
	var buf bytes.Buffer
	sw := snappy.NewBufferedWriter(&buf)
	if err := gob.NewEncoder(sw).Encode(st); err != nil {
		return errors.Wrapf(err, "checkpoint: encode %s", path)
	}
	if err := sw.Close(); err != nil {
		return errors.Wrapf(err, "checkpoint: flush %s", path)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "checkpoint: write %s", path)
	}
	return nil
}

// MarkDone records region index idx as completed.
func (st *State) MarkDone(idx int) {
	if st.Completed == nil {
		st.Completed = map[int]bool{}
	}
	st.Completed[idx] = true
}

// IsDone reports whether region index idx was completed by a prior run.
func (st *State) IsDone(idx int) bool {
	return st.Completed[idx]
}
