package addrspace

import (
	"encoding/binary"

	farm "github.com/dgryski/go-farm"
)

// pageIndex answers "is this page backed by a Section", the hot path for
// IsMappedV (called once per aligned word of every writable region). It is
// a hash table keyed by page number with a fixed number of shards,
// following the same shard-by-farmhash idiom as the kmer->genelist index in
// the teacher's fusion-detection pipeline: farm.Hash64WithSeed modulo
// pageIndexShards picks a shard, and each shard is an unordered slice that
// is searched linearly. The shard count never grows, so a lookup scans on
// average (mapped pages / pageIndexShards) entries and its cost rises with
// the number of mapped pages.
const pageIndexShards = 256

type pageEntry struct {
	page uint64
	sec  *Section
	used bool
}

type pageIndex struct {
	shards [pageIndexShards][]pageEntry
}

func newPageIndex() *pageIndex {
	return &pageIndex{}
}

func pageHash(page uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], page)
	return farm.Hash64WithSeed(buf[:], 0)
}

func (p *pageIndex) shardFor(page uint64) int {
	return int(pageHash(page) % pageIndexShards)
}

// put maps page to sec, growing the shard's table as needed. Later inserts
// for the same page overwrite earlier ones (adjacent sections sharing a
// page boundary resolve to whichever is inserted last).
func (p *pageIndex) put(page uint64, sec *Section) {
	shard := p.shardFor(page)
	bucket := p.shards[shard]
	for i := range bucket {
		if bucket[i].used && bucket[i].page == page {
			bucket[i].sec = sec
			return
		}
	}
	p.shards[shard] = append(bucket, pageEntry{page: page, sec: sec, used: true})
}

// get returns the Section mapping the given page, if any.
func (p *pageIndex) get(page uint64) (*Section, bool) {
	shard := p.shardFor(page)
	bucket := p.shards[shard]
	for i := range bucket {
		if bucket[i].used && bucket[i].page == page {
			return bucket[i].sec, true
		}
	}
	return nil, false
}
