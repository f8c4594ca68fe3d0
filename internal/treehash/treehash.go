// Package treehash implements the two-level SHA-256 tree hash used by
// Glacier to verify archive integrity. A part hash is built from 1 MiB
// leaf hashes; the archive hash is built from the part hashes using the
// same pairwise combination.
package treehash

import (
	"crypto/sha256"
	"encoding/hex"
)

// LeafSize is the fixed leaf granularity of the tree hash (1 MiB).
// This is a protocol constant, not tunable.
const LeafSize = 1024 * 1024

// Digest is a single SHA-256 tree hash node.
type Digest [sha256.Size]byte

// Hex returns the lowercase hex encoding of the digest, the form Glacier
// uses for checksum strings.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// ParseHex decodes a 64-character hex checksum string into a Digest.
func ParseHex(s string) (Digest, bool) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != sha256.Size {
		return d, false
	}
	copy(d[:], raw)
	return d, true
}

// Leaf returns the SHA-256 digest of a single leaf's bytes.
func Leaf(data []byte) Digest {
	return sha256.Sum256(data)
}

// Part computes the tree hash of one part's bytes: the data is split into
// consecutive 1 MiB leaves (the last may be shorter), each leaf is hashed,
// and the leaf digests are combined pairwise.
func Part(data []byte) Digest {
	if len(data) <= LeafSize {
		return Leaf(data)
	}
	leaves := make([]Digest, 0, (len(data)+LeafSize-1)/LeafSize)
	for pos := 0; pos < len(data); pos += LeafSize {
		end := pos + LeafSize
		if end > len(data) {
			end = len(data)
		}
		leaves = append(leaves, Leaf(data[pos:end]))
	}
	return Combine(leaves)
}

// Combine reduces a digest list to a single digest by repeatedly hashing
// adjacent pairs. An odd digest at the end of a level is carried up
// unchanged, never paired with itself. Glacier computes its checksums the
// same way, so this rule must match exactly.
//
// Combine over the ordered part digests of an archive yields the archive's
// total tree hash. Combine of a single digest is that digest.
func Combine(digests []Digest) Digest {
	tree := make([]Digest, len(digests))
	copy(tree, digests)

	for len(tree) > 1 {
		parent := tree[:0]
		for i := 0; i < len(tree); i += 2 {
			if i+1 < len(tree) {
				h := sha256.New()
				h.Write(tree[i][:])
				h.Write(tree[i+1][:])
				var d Digest
				h.Sum(d[:0])
				parent = append(parent, d)
			} else {
				parent = append(parent, tree[i])
			}
		}
		tree = parent
	}
	return tree[0]
}
