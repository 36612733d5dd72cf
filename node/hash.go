package node

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// ContentHash digests the identity-relevant fields of a node: name, class,
// the parent path derived from Path, and every property except administrative
// ones. Two observations of the same path with equal hashes are treated as
// unchanged, so the consumer never compares full property sets.
//
// Property keys are sorted before hashing so equal maps observed in different
// iteration orders always hash identically. A hash collision would make a real
// change look like no change; with a 64-bit xxh3 digest over per-node content
// that risk is accepted as negligible.
func (n *Node) ContentHash() uint64 {
	buf := make([]byte, 0, 256)
	buf = append(buf, n.Name...)
	buf = append(buf, 0)
	buf = append(buf, n.Class...)
	buf = append(buf, 0)
	buf = append(buf, ParentPath(n.Path)...)
	buf = append(buf, 0)
	for _, key := range SortedPropKeys(n.Props) {
		if IsAdminProp(key) {
			continue
		}
		buf = append(buf, key...)
		buf = append(buf, 0)
		buf = n.Props[key].appendCanonical(buf)
		buf = append(buf, 0)
	}
	return xxh3.Hash(buf)
}

// IsAdminProp reports whether a property key is administrative bookkeeping
// (underscore-prefixed) rather than object content. Administrative keys are
// carried on the wire for display but excluded from change detection so
// producer-side accounting churn does not generate deltas.
func IsAdminProp(key string) bool {
	return strings.HasPrefix(key, "_")
}
