// Package dumpsource loads the raw dump byte view that addrspace.New
// consumes (spec §1's "raw file mapping/loading of the dump" external
// collaborator). A dump path may be a local file, an s3:// object, or
// either with a .gz suffix; this package is the only place that cares
// which. Local, uncompressed dumps are memory-mapped rather than read into
// a heap buffer, grounded on fusion/kmer_index.go's use of
// golang.org/x/sys/unix for direct control over the process's memory
// mapping; every other source streams through grailbio/base/file, which
// already knows how to address s3:// paths.
package dumpsource

import (
	"io/ioutil"
	"os"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Load returns the full byte contents of the dump at path. Local paths
// without a .gz suffix are memory-mapped read-only; everything else
// (s3:// objects, .gz-suffixed paths of either kind) is decoded into a
// heap buffer.
func Load(path string) ([]byte, error) {
	if strings.HasSuffix(path, ".gz") {
		return loadCompressed(path)
	}
	if isLocal(path) {
		return mmapLocal(path)
	}
	return loadRemote(path)
}

func isLocal(path string) bool {
	return !strings.Contains(path, "://")
}

func mmapLocal(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dumpsource: open %s", path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "dumpsource: stat %s", path)
	}
	size := fi.Size()
	if size == 0 {
		return nil, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "dumpsource: mmap %s", path)
	}
	return data, nil
}

func loadCompressed(path string) ([]byte, error) {
	ctx := vcontext.Background()
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "dumpsource: open %s", path)
	}
	defer f.Close(ctx)

	gz, err := gzip.NewReader(f.Reader(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "dumpsource: gzip header %s", path)
	}
	defer gz.Close()

	data, err := ioutil.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrapf(err, "dumpsource: decompress %s", path)
	}
	return data, nil
}

func loadRemote(path string) ([]byte, error) {
	ctx := vcontext.Background()
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "dumpsource: open %s", path)
	}
	defer f.Close(ctx)

	data, err := ioutil.ReadAll(f.Reader(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "dumpsource: read %s", path)
	}
	return data, nil
}
