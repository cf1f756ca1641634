//go:build linux

package opensearch

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"strings"
)

// rollupKeys are the smaps_rollup lines that split RSS into heap and
// file-backed memory.
var rollupKeys = map[string]bool{"Anonymous": true, "Private_Dirty": true, "Shared_Clean": true, "Shmem": true}

// readProcessMemory is best-effort; ok is false when /proc/self/statm is
// unreadable. Rollup is filled only when smaps_rollup is available.
func readProcessMemory() (procMemory, bool) {
	b, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return procMemory{}, false
	}
	fields := bytes.Fields(b)
	if len(fields) < 2 {
		return procMemory{}, false
	}
	pages, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return procMemory{}, false
	}
	mem := procMemory{RSS: pages * uint64(os.Getpagesize())}
	mem.Rollup = readSmapsRollup()
	return mem, true
}

func readSmapsRollup() map[string]uint64 {
	f, err := os.Open("/proc/self/smaps_rollup")
	if err != nil {
		return nil
	}
	defer f.Close()

	out := make(map[string]uint64, len(rollupKeys))
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		// "Anonymous:   1234 kB"
		key, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok || !rollupKeys[strings.TrimSpace(key)] {
			continue
		}
		vals := strings.Fields(rest)
		if len(vals) == 0 {
			continue
		}
		kb, err := strconv.ParseUint(vals[0], 10, 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(key)] = kb * 1024
	}
	if sc.Err() != nil || len(out) == 0 {
		return nil
	}
	return out
}
