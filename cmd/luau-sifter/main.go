// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/trumetaverse/luau-sifter/addrspace"
	"github.com/trumetaverse/luau-sifter/driver"
	"github.com/trumetaverse/luau-sifter/ingest/dumpsource"
	"github.com/trumetaverse/luau-sifter/ingest/sections"
)

var (
	dmpPath      = flag.String("dmp", "", "Path to the process memory dump (required); local path, s3://, or either with a .gz suffix")
	sectionsPath = flag.String("r2-sections", "", "Path to the section description JSON array (required)")

	pointerSearch = flag.Bool("pointer-search", false, "Run the word-aligned pointer scanner")
	luaPageSearch = flag.Bool("luapage-search", false, "Run the allocator page-header scanner")
	regexSearches = flag.Bool("regex-searches", false, "Run the tag-delimited regex block scanner")

	regexStart = flag.String("regex-start", "", "Override the default start regular expression (regexblock.DefaultStartPattern if empty)")
	regexEnd   = flag.String("regex-end", "", "Override the default end regular expression (regexblock.DefaultEndPattern if empty)")

	outputPath = flag.String("output-path", "", "Results directory (required); created if missing")
	numThreads = flag.Uint64("num-threads", 10, "Worker cap for the parallel driver")

	wordSize    = flag.Int("word-size", 8, "Pointer/word width in bytes: 4 or 8")
	bigEndian   = flag.Bool("big-endian", false, "Decode multi-byte fields big-endian (default little-endian)")
	maxBlockSz  = flag.Uint("max-block-size", 0, "Reject page headers whose block_size exceeds this (0 = unbounded)")
	checkpoint  = flag.Bool("checkpoint", true, "Persist and resume per-region scan progress across runs")
	logConf     = flag.String("log-conf", "", "Log configuration file (parsed, but not read by this build)")
	interactive = flag.Bool("interactive", false, "Reserved: interactive REPL mode (not implemented by the core scan engine)")
	quickTest   = flag.Bool("quick-test", false, "Reserved: self-test mode (not implemented by the core scan engine)")
)

// Short flag aliases, matching spec §6's -p/-l/-r/-s/-e/-o/-n/-i/-q.
func init() {
	flag.BoolVar(pointerSearch, "p", false, "Alias for --pointer-search")
	flag.BoolVar(luaPageSearch, "l", false, "Alias for --luapage-search")
	flag.BoolVar(regexSearches, "r", false, "Alias for --regex-searches")
	flag.StringVar(regexStart, "s", "", "Alias for --regex-start")
	flag.StringVar(regexEnd, "e", "", "Alias for --regex-end")
	flag.StringVar(outputPath, "o", "", "Alias for --output-path")
	flag.Uint64Var(numThreads, "n", 10, "Alias for --num-threads")
	flag.BoolVar(interactive, "i", false, "Alias for --interactive")
	flag.BoolVar(quickTest, "q", false, "Alias for --quick-test")
}

func luauSifterUsage() {
	fmt.Printf("Usage: %s --dmp PATH --r2-sections PATH --output-path DIR [OPTIONS]\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = luauSifterUsage
	shutdown := grail.Init()
	defer shutdown()

	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})

	if *dmpPath == "" || *sectionsPath == "" || *outputPath == "" {
		log.Fatalf("--dmp, --r2-sections, and --output-path are all required")
	}
	if *wordSize != 4 && *wordSize != 8 {
		log.Fatalf("--word-size must be 4 or 8, got %d", *wordSize)
	}
	if *interactive {
		log.Fatalf("--interactive is a reserved REPL mode, not implemented by this build")
	}
	if *quickTest {
		log.Fatalf("--quick-test is a reserved self-test mode, not implemented by this build")
	}

	if err := os.MkdirAll(*outputPath, 0o755); err != nil {
		log.Fatalf("output-path: %v", err)
	}

	dump, err := dumpsource.Load(*dmpPath)
	if err != nil {
		log.Fatalf("dmp: %v", err)
	}

	ctx := vcontext.Background()
	secFile, err := file.Open(ctx, *sectionsPath)
	if err != nil {
		log.Fatalf("r2-sections: %v", err)
	}
	defer secFile.Close(ctx)

	secs, err := sections.Decode(secFile.Reader(ctx))
	if err != nil {
		log.Fatalf("r2-sections: %v", err)
	}

	endian := addrspace.LittleEndian
	if *bigEndian {
		endian = addrspace.BigEndian
	}
	as, err := addrspace.New(dump, secs, endian, *wordSize)
	if err != nil {
		log.Fatalf("addrspace: %v", err)
	}

	var maxBlockSize *uint32
	if *maxBlockSz != 0 {
		v := uint32(*maxBlockSz)
		maxBlockSize = &v
	}

	opts := driver.Options{
		MaxWorkers:    int(*numThreads),
		EnablePointer: *pointerSearch,
		EnableLuaPage: *luaPageSearch,
		EnableRegex:   *regexSearches,
		RegexStart:    *regexStart,
		RegexEnd:      *regexEnd,
		MaxBlockSize:  maxBlockSize,
		OutputDir:     *outputPath,
	}
	if *checkpoint {
		opts.CheckpointPath = filepath.Join(*outputPath, ".luau-sifter.checkpoint")
	}

	if err := driver.Run(as, dump, opts); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
