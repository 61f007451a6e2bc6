package engine

import (
	"strconv"
	"strings"
)

// LookupPath resolves a dot/bracket accessor (e.g. "trigger.order.items[0].sku")
// against a value tree of maps and slices. A missing segment resolves to
// (nil, false); that is a defined semantic, never an error.
func LookupPath(root interface{}, path string) (interface{}, bool) {
	cur := root
	for _, seg := range splitPath(path) {
		if seg.index >= 0 {
			arr, ok := cur.([]interface{})
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.index]
			continue
		}
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg.key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

type pathSegment struct {
	key   string
	index int // -1 for map keys
}

func splitPath(path string) []pathSegment {
	var segs []pathSegment
	for _, part := range strings.Split(strings.TrimSpace(path), ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// Peel off trailing [n] indices: "items[0][1]" -> items, 0, 1.
		for {
			open := strings.Index(part, "[")
			if open < 0 {
				if part != "" {
					segs = append(segs, pathSegment{key: part, index: -1})
				}
				break
			}
			if open > 0 {
				segs = append(segs, pathSegment{key: part[:open], index: -1})
			}
			close := strings.Index(part, "]")
			if close < open {
				// Malformed bracket; treat the remainder as a literal key.
				segs = append(segs, pathSegment{key: part[open:], index: -1})
				break
			}
			idx, err := strconv.Atoi(part[open+1 : close])
			if err != nil || idx < 0 {
				segs = append(segs, pathSegment{key: part[open+1 : close], index: -1})
			} else {
				segs = append(segs, pathSegment{index: idx})
			}
			part = part[close+1:]
			if part == "" {
				break
			}
		}
	}
	return segs
}
