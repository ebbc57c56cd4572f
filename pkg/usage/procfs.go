package usage

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"
)

// USER_HZ on every Linux platform Go supports.
const clockTicks = 100.0

func readProcSelfStat() (utime, stime, rssBytes uint64, ok bool) {
	b, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return
	}
	s := string(b)
	// The command name may contain spaces, fields start after its closing paren.
	rp := strings.LastIndexByte(s, ')')
	if rp < 0 || rp+2 > len(s) {
		return
	}
	fields := strings.Fields(s[rp+2:])
	if len(fields) < 22 {
		return
	}

	utime, _ = strconv.ParseUint(fields[11], 10, 64)
	stime, _ = strconv.ParseUint(fields[12], 10, 64)
	rssPages, _ := strconv.ParseInt(fields[21], 10, 64)

	return utime, stime, uint64(rssPages) * uint64(os.Getpagesize()), true
}

func readProcStatTotal() (total uint64, ok bool) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		for _, p := range strings.Fields(line)[1:] {
			v, err := strconv.ParseUint(p, 10, 64)
			if err != nil {
				return 0, false
			}
			total += v
		}

		return total, true
	}

	return 0, false
}

func readCgroupMemory() (used, limit uint64, ok bool) {
	// cgroup v2.
	if u, err := readUint("/sys/fs/cgroup/memory.current"); err == nil {
		if lim, err := readUint("/sys/fs/cgroup/memory.max"); err == nil {
			return u, lim, true
		}

		return u, 0, true
	}

	// cgroup v1.
	u, errU := readUint("/sys/fs/cgroup/memory/memory.usage_in_bytes")
	if errU != nil {
		return 0, 0, false
	}
	lim, _ := readUint("/sys/fs/cgroup/memory/memory.limit_in_bytes")

	return u, lim, true
}

// readUint fails on "max", which cgroup v2 writes for no limit.
func readUint(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, errors.New("empty value")
	}

	return strconv.ParseUint(s, 10, 64)
}
