// Package driver implements the ParallelDriver (spec §4.6): it fans the
// writable regions of an AddressSpace out across a bounded pool of workers,
// runs whichever scanners were requested over each region, and writes the
// findings to newline-delimited JSON files in dispatch order.
//
// The fan-out shape — partition the work into `parallelism` contiguous
// slices and run each slice in a traverse.Each job — is grounded directly
// on pileup/snp/pileup.go's pileupSNPMain main loop. Per-job ordered
// aggregation into the output files is grounded on
// encoding/bam/shardedbam.go's ShardedBAMWriter, which drains a
// syncqueue.OrderedQueue keyed by shard number from a dedicated writer
// goroutine; here the "shard number" is the job index. Spec §9 explicitly
// calls out the original's 500ms FIFO-drain admission throttle as a
// workaround not to be reproduced, so unlike the literal spec text this
// pool has no burst-join step — traverse.Each's own bounded concurrency is
// the admission control.
package driver

import (
	"encoding/binary"
	"path/filepath"
	"sync"

	baseerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/base/traverse"
	"github.com/minio/highwayhash"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"

	"github.com/trumetaverse/luau-sifter/addrspace"
	"github.com/trumetaverse/luau-sifter/driver/checkpoint"
	"github.com/trumetaverse/luau-sifter/scan"
	"github.com/trumetaverse/luau-sifter/scan/luapage"
	"github.com/trumetaverse/luau-sifter/scan/pointer"
	"github.com/trumetaverse/luau-sifter/scan/regexblock"
)

// Options configures which scanners run and how the pool is sized.
type Options struct {
	MaxWorkers int // default 10, per spec §4.6/§6.

	EnablePointer bool
	EnableLuaPage bool
	EnableRegex   bool

	RegexStart, RegexEnd string
	MaxBlockSize         *uint32

	OutputDir      string
	CheckpointPath string // empty disables checkpointing.
}

// jobResult is one traverse.Each job's findings, still in the job's
// dispatch order.
type jobResult struct {
	pointerFindings []pointer.Finding
	pageFindings    []luapage.Finding
	regionRegex     []regexblock.Finding
}

// Run scans every writable region of as with the enabled scanners and
// writes pointer_comments.json, luapage_comments.json and
// memory_ranges_roblox_assets.json under opts.OutputDir (each empty when
// its scanner is off), plus full_dump_roblox_assets.json only when
// opts.EnableRegex is set. fullDump is the
// entire dump byte view, used for the whole-dump regex pass
// (full_dump_roblox_assets.json); as is used for the per-region passes.
func Run(as *addrspace.AddressSpace, fullDump []byte, opts Options) error {
	allRegions := scan.WritableRegions(as)

	var ckpt *checkpoint.State
	fingerprint := checkpoint.Fingerprint(fullDump, sectionLayoutBytes(as))
	if opts.CheckpointPath != "" {
		var err error
		ckpt, err = checkpoint.Load(opts.CheckpointPath, fingerprint)
		if err != nil {
			return err
		}
	} else {
		ckpt = &checkpoint.State{Fingerprint: fingerprint, Completed: map[int]bool{}}
	}

	// Regions the checkpoint records as done are skipped. The checkpoint is
	// saved only at the end of a successful run, so an interrupted run
	// records nothing. Original indices are kept so a successful run marks
	// exactly the regions it scanned, not the whole set.
	var regions []*addrspace.Section
	var origIndex []int
	for i, sec := range allRegions {
		if ckpt.IsDone(i) {
			continue
		}
		regions = append(regions, sec)
		origIndex = append(origIndex, i)
	}
	if len(regions) < len(allRegions) {
		vlog.Infof("driver: resuming, %d of %d regions already complete", len(allRegions)-len(regions), len(allRegions))
	}

	var regexScanner *regexblock.Scanner
	if opts.EnableRegex {
		var err error
		regexScanner, err = regexblock.New(opts.RegexStart, opts.RegexEnd)
		if err != nil {
			return err
		}
	}
	pointerScanner := pointer.New()
	pageScanner := luapage.New(luapage.Options{MaxBlockSize: opts.MaxBlockSize})

	parallelism := opts.MaxWorkers
	if parallelism <= 0 {
		parallelism = 10
	}
	if parallelism > len(regions) {
		parallelism = len(regions)
	}

	pointerWriter, err := newNDJSONWriter(filepath.Join(opts.OutputDir, "pointer_comments.json"), "pointer_comments")
	if err != nil {
		return err
	}
	pageWriter, err := newNDJSONWriter(filepath.Join(opts.OutputDir, "luapage_comments.json"), "luapage_comments")
	if err != nil {
		return err
	}
	rangeWriter, err := newNDJSONWriter(filepath.Join(opts.OutputDir, "memory_ranges_roblox_assets.json"), "memory_ranges_roblox_assets")
	if err != nil {
		return err
	}
	defer pointerWriter.Close()
	defer pageWriter.Close()
	defer rangeWriter.Close()

	if parallelism == 0 {
		// Idempotence of admission (spec §8 property 6): an empty
		// writable-region set is a valid, vacuous run. The deferred
		// Close()s above already leave the per-region output files empty;
		// the whole-dump regex pass still only runs when requested.
		if opts.EnableRegex {
			return scanWholeDump(fullDump, opts)
		}
		return nil
	}

	pointerQueue := syncqueue.NewOrderedQueue(parallelism)
	pageQueue := syncqueue.NewOrderedQueue(parallelism)
	rangeQueue := syncqueue.NewOrderedQueue(parallelism)

	var writeWG sync.WaitGroup
	writeWG.Add(3)
	go func() {
		defer writeWG.Done()
		for {
			v, ok, err := pointerQueue.Next()
			if err != nil || !ok {
				return
			}
			job := v.(jobResult)
			for _, f := range job.pointerFindings {
				if werr := pointerWriter.WriteValue(f.Comment); werr != nil {
					pointerQueue.Close(werr)
					return
				}
			}
		}
	}()
	go func() {
		defer writeWG.Done()
		for {
			v, ok, err := pageQueue.Next()
			if err != nil || !ok {
				return
			}
			job := v.(jobResult)
			for _, f := range job.pageFindings {
				if werr := pageWriter.WriteValue(f.Comment); werr != nil {
					pageQueue.Close(werr)
					return
				}
			}
		}
	}()
	go func() {
		defer writeWG.Done()
		for {
			v, ok, err := rangeQueue.Next()
			if err != nil || !ok {
				return
			}
			job := v.(jobResult)
			for _, f := range job.regionRegex {
				if werr := rangeWriter.WriteValue(f.Result); werr != nil {
					rangeQueue.Close(werr)
					return
				}
			}
		}
	}()

	errOnce := baseerrors.Once{}
	terr := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(regions)) / parallelism
		endIdx := ((jobIdx + 1) * len(regions)) / parallelism

		job := jobResult{}
		for _, sec := range regions[startIdx:endIdx] {
			if opts.EnablePointer {
				job.pointerFindings = append(job.pointerFindings, pointerScanner.ScanRegion(as, sec)...)
			}
			if opts.EnableLuaPage {
				job.pageFindings = append(job.pageFindings, pageScanner.ScanRegion(as, sec)...)
			}
			if opts.EnableRegex {
				b := as.SectionBytes(sec)
				job.regionRegex = append(job.regionRegex,
					regexScanner.ScanBuffer(b, sec.VAddrStart, sec.PAddrStart, sec.Name)...)
			}
		}

		if err := pointerQueue.Insert(jobIdx, job); err != nil {
			return err
		}
		if err := pageQueue.Insert(jobIdx, job); err != nil {
			return err
		}
		if err := rangeQueue.Insert(jobIdx, job); err != nil {
			return err
		}
		return nil
	})
	errOnce.Set(terr)

	pointerQueue.Close(nil)
	pageQueue.Close(nil)
	rangeQueue.Close(nil)
	writeWG.Wait()

	if err := errOnce.Err(); err != nil {
		vlog.Errorf("driver: worker error: %v", err)
		return errors.Wrap(err, "driver: scan failed")
	}

	if opts.EnableRegex {
		if err := scanWholeDump(fullDump, opts); err != nil {
			return err
		}
	}

	if opts.CheckpointPath != "" {
		for _, i := range origIndex {
			ckpt.MarkDone(i)
		}
		if err := checkpoint.Save(opts.CheckpointPath, ckpt); err != nil {
			return err
		}
	}

	vlog.Infof("driver: scanned %d writable regions with %d workers", len(regions), parallelism)
	vlog.Infof("driver: summary pointer=%d page=%d memory_ranges=%d fingerprint=%x",
		pointerWriter.Count(), pageWriter.Count(), rangeWriter.Count(), runFingerprint(fullDump))
	return nil
}

// runFingerprint hashes the whole dump so two runs' log summaries can be
// diffed without opening the output files (spec §7's "successful run
// prints summary counts per scanner to the log", extended with a fast
// whole-dump fingerprint). The key is the zero key: this identifies a run's
// input, it does not need to resist a chosen-input attack.
func runFingerprint(dump []byte) uint64 {
	var zeroKey [highwayhash.Size]byte
	sum := highwayhash.Sum(dump, zeroKey[:])
	return binary.LittleEndian.Uint64(sum[:8])
}

// scanWholeDump runs the regex scanner over the entire dump (not scoped to
// any section), producing full_dump_roblox_assets.json.
func scanWholeDump(fullDump []byte, opts Options) error {
	w, err := newNDJSONWriter(filepath.Join(opts.OutputDir, "full_dump_roblox_assets.json"), "full_dump_roblox_assets")
	if err != nil {
		return err
	}
	defer w.Close()

	s, err := regexblock.New(opts.RegexStart, opts.RegexEnd)
	if err != nil {
		return err
	}
	for _, f := range s.ScanBuffer(fullDump, 0, 0, "") {
		if err := w.WriteValue(f.Result); err != nil {
			return err
		}
	}
	return nil
}

// sectionLayoutBytes serializes the section layout deterministically for
// checkpoint fingerprinting, independent of the input JSON's key order.
func sectionLayoutBytes(as *addrspace.AddressSpace) []byte {
	var buf []byte
	for _, sec := range as.Sections() {
		buf = append(buf, []byte(sec.Name)...)
		buf = appendUint64(buf, sec.VAddrStart)
		buf = appendUint64(buf, sec.PAddrStart)
		buf = appendUint64(buf, sec.VSize)
	}
	return buf
}

func appendUint64(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(8*uint(i))))
	}
	return b
}
