// Package vmmap parses a process's executable memory mappings out of
// /proc/<pid>/maps.
package vmmap

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LabelLength is the maximum length of a Map's Label, matching the
// on-disk record's fixed-width label field.
const LabelLength = 255

// Map describes one executable mapping of a process's address space.
type Map struct {
	Addr  uint64
	Size  uint64
	Label string
}

// Maps is an ordered, deduplicated collection of Map.
type Maps []Map

// Contains reports whether maps already holds a mapping with the same
// start address, size, and label.
func (maps Maps) Contains(addr, end uint64, label string) bool {
	size := end - addr
	for _, m := range maps {
		if m.Addr == addr && m.Size == size && m.Label == label {
			return true
		}
	}
	return false
}

// Collect reads the executable, named mappings of pid's address space,
// deduplicated by (addr, size, label). limit caps the number of mappings
// collected; 0 means unlimited.
//
// Mirrors getProcessVMMaps: only mappings with the executable permission
// bit set are kept, and bracketed pseudo-paths ("[heap]", "[stack]", ...)
// are excluded.
func Collect(ctx context.Context, pid int, limit int) (Maps, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var result Maps
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		addr, end, perms, name, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		if !strings.Contains(perms, "x") {
			continue
		}
		base := filepath.Base(name)
		if base == "" || (strings.HasPrefix(base, "[") && strings.HasSuffix(base, "]")) {
			continue
		}
		if len(base) > LabelLength {
			base = base[:LabelLength]
		}
		if result.Contains(addr, end, base) {
			continue
		}
		result = append(result, Map{Addr: addr, Size: end - addr, Label: base})
		if limit != 0 && len(result) == limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	return result, nil
}

// parseLine parses one /proc/<pid>/maps line of the form:
//
//	<start>-<end> <perms> <offset> <dev> <inode> [<pathname>]
//
// Lines with no pathname field are reported as !ok, matching the
// original's fscanf pattern which only records lines where all five
// conversions succeeded.
func parseLine(line string) (addr, end uint64, perms, pathname string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return 0, 0, "", "", false
	}
	addrRange := strings.SplitN(fields[0], "-", 2)
	if len(addrRange) != 2 {
		return 0, 0, "", "", false
	}
	start, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return 0, 0, "", "", false
	}
	stop, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil {
		return 0, 0, "", "", false
	}
	return start, stop, fields[1], fields[5], true
}

// Collision reports whether any mapping in a overlaps any mapping in b,
// treating each mapping as the half-open interval [Addr, Addr+Size).
func Collision(a, b Maps) bool {
	for _, m1 := range a {
		m1start, m1end := m1.Addr, m1.Addr+m1.Size
		for _, m2 := range b {
			m2start, m2end := m2.Addr, m2.Addr+m2.Size
			if m1start < m2end && m2start < m1end {
				return true
			}
		}
	}
	return false
}
