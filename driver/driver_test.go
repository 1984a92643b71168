package driver

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"

	"github.com/trumetaverse/luau-sifter/addrspace"
)

// syntheticDump builds a two-section dump: section "a" holds one aligned
// pointer into section "b", and section "b" holds a <roblox>...</roblox>
// block, so a single run exercises all three scanners at once.
func syntheticDump(t *testing.T) (*addrspace.AddressSpace, []byte) {
	t.Helper()

	tag := []byte("<roblox>DATA</roblox>")
	dump := make([]byte, 64)
	copy(dump[16:], tag)
	// little-endian uint64 pointer at offset 0, targeting section b's start.
	dump[0], dump[1], dump[2] = 0x00, 0x00, 0x02

	sections := []addrspace.Section{
		{Name: "a", Perm: "rw", VAddrStart: 0x10000, VSize: 16, PAddrStart: 0, Size: 16},
		{Name: "b", Perm: "rw", VAddrStart: 0x20000, VSize: 48, PAddrStart: 16, Size: 48},
	}
	as, err := addrspace.New(dump, sections, addrspace.LittleEndian, 8)
	require.NoError(t, err)
	return as, dump
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	require.NoError(t, sc.Err())
	return n
}

func TestRunWritesAllFourOutputFiles(t *testing.T) {
	as, dump := syntheticDump(t)
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	opts := Options{
		MaxWorkers:    2,
		EnablePointer: true,
		EnableLuaPage: true,
		EnableRegex:   true,
	}
	opts.OutputDir = dir
	require.NoError(t, Run(as, dump, opts))

	require.Equal(t, 1, countLines(t, filepath.Join(dir, "pointer_comments.json")))
	require.Equal(t, 1, countLines(t, filepath.Join(dir, "memory_ranges_roblox_assets.json")))
	require.Equal(t, 1, countLines(t, filepath.Join(dir, "full_dump_roblox_assets.json")))
	// No allocator page header in this synthetic dump.
	require.Equal(t, 0, countLines(t, filepath.Join(dir, "luapage_comments.json")))
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	as, dump := syntheticDump(t)

	run := func(workers int) string {
		dir, cleanup := testutil.TempDir(t, "", "")
		defer cleanup()
		opts := Options{MaxWorkers: workers, EnablePointer: true, EnableRegex: true, OutputDir: dir}
		require.NoError(t, Run(as, dump, opts))
		b, err := os.ReadFile(filepath.Join(dir, "pointer_comments.json"))
		require.NoError(t, err)
		return string(b)
	}

	out1 := run(1)
	out2 := run(2)
	require.Equal(t, out1, out2)
}

func TestRunWithNoWritableRegionsProducesEmptyOutput(t *testing.T) {
	dump := make([]byte, 16)
	sections := []addrspace.Section{
		{Name: "ro", Perm: "r", VAddrStart: 0x10000, VSize: 16, PAddrStart: 0, Size: 16},
	}
	as, err := addrspace.New(dump, sections, addrspace.LittleEndian, 8)
	require.NoError(t, err)

	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	opts := Options{MaxWorkers: 10, EnablePointer: true, EnableLuaPage: true, EnableRegex: true, OutputDir: dir}
	require.NoError(t, Run(as, dump, opts))

	require.Equal(t, 0, countLines(t, filepath.Join(dir, "pointer_comments.json")))
	require.Equal(t, 0, countLines(t, filepath.Join(dir, "luapage_comments.json")))
	require.Equal(t, 0, countLines(t, filepath.Join(dir, "full_dump_roblox_assets.json")))
}

// TestRunWithNoWritableRegionsRespectsRegexFlag guards against the
// parallelism==0 fast path running the whole-dump regex scan unconditionally:
// with no writable regions to scan and --regex-searches not requested, a
// dump containing a real <roblox> tag must not produce a populated
// full_dump_roblox_assets.json, and the file must not be created at all.
func TestRunWithNoWritableRegionsRespectsRegexFlag(t *testing.T) {
	dump := []byte("<roblox>DATA</roblox>")
	sections := []addrspace.Section{
		{Name: "ro", Perm: "r", VAddrStart: 0x10000, VSize: uint64(len(dump)), PAddrStart: 0, Size: uint64(len(dump))},
	}
	as, err := addrspace.New(dump, sections, addrspace.LittleEndian, 8)
	require.NoError(t, err)

	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	opts := Options{MaxWorkers: 10, EnablePointer: true, EnableRegex: false, OutputDir: dir}
	require.NoError(t, Run(as, dump, opts))

	_, err = os.Stat(filepath.Join(dir, "full_dump_roblox_assets.json"))
	require.True(t, os.IsNotExist(err), "full_dump_roblox_assets.json must not be created when --regex-searches is off")
}
