package walk

import (
	"strconv"
	"strings"
)

// Normalize strips surrounding whitespace and ensures exactly one leading dot,
// the form gosnmp uses for SnmpPDU.Name.
func Normalize(oid string) string {
	oid = strings.TrimSpace(oid)
	oid = strings.TrimLeft(oid, ".")
	if oid == "" {
		return ""
	}
	return "." + oid
}

// IsDescendant reports whether key lies inside the subtree rooted at root.
// A key equal to root counts as inside.
func IsDescendant(root, key string) bool {
	root, key = Normalize(root), Normalize(key)
	if root == "" {
		return false
	}
	return key == root || strings.HasPrefix(key, root+".")
}

// Compare orders two OIDs arc by arc numerically. It returns -1, 0 or +1.
// Arcs that are not numbers compare lexically so malformed input still sorts.
func Compare(a, b string) int {
	pa := strings.Split(strings.TrimLeft(a, "."), ".")
	pb := strings.Split(strings.TrimLeft(b, "."), ".")
	n := len(pa)
	if len(pb) < n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		if c := compareArc(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}

func compareArc(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return 0
}

// Index returns the instance suffix of key below root, e.g.
// Index(".1.3.6.1.2.1.2.2.1.2", ".1.3.6.1.2.1.2.2.1.2.7") == "7".
// It returns "" when key is not a strict descendant.
func Index(root, key string) string {
	root, key = Normalize(root), Normalize(key)
	if !strings.HasPrefix(key, root+".") {
		return ""
	}
	return key[len(root)+1:]
}
